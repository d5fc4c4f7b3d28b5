package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrUnknownPostcode = errors.New("unknown postcode")

// PostcodeClient resolves UK postcodes to coordinates with postcodes.io.
type PostcodeClient struct {
	http *resty.Client
}

func NewPostcodeClient(baseUrl string) PostcodeClient {
	if baseUrl == "" {
		baseUrl = "https://api.postcodes.io"
	}
	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetTimeout(time.Second * 10)
	return PostcodeClient{http: client}
}

type postcodeResponse struct {
	Status int `json:"status"`
	Result *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"result"`
}

// NormalizePostcode uppercases and removes whitespace.
func NormalizePostcode(postcode string) string {
	return strings.ToUpper(strings.Join(strings.Fields(postcode), ""))
}

func (c PostcodeClient) Lookup(ctx context.Context, postcode string) (lat, lon float64, err error) {
	postcode = NormalizePostcode(postcode)
	if postcode == "" {
		return 0, 0, ErrUnknownPostcode
	}

	var body postcodeResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("postcode", postcode).
		SetResult(&body).
		Get("/postcodes/{postcode}")
	if err != nil {
		return 0, 0, fmt.Errorf("lookup postcode: %w", err)
	}
	if res.StatusCode() == 404 || body.Result == nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownPostcode, postcode)
	}
	if res.IsError() {
		return 0, 0, fmt.Errorf("lookup postcode: unexpected status %s", res.Status())
	}
	return body.Result.Latitude, body.Result.Longitude, nil
}
