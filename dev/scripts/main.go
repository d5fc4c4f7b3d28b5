package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const devSnapshot = "dev/.state/screenings.json"

func printScripts() {
	fmt.Println("Scripts:")
	keys := make([]string, 0, len(scriptMap))
	for key := range scriptMap {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Println("\t" + key)
	}
}

func main() {
	flag.Parse()

	script := flag.Arg(0)
	fn, ok := scriptMap[script]
	if !ok {
		fmt.Printf(
			"you must specify a valid script, '%s' is not a valid script.\n",
			script,
		)
		printScripts()
		os.Exit(1)
	}

	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		fmt.Println("scripts must be run from the repository root (the directory containing 'go.mod')")
		os.Exit(1)
	}

	fn()
}

func cmd(env []string, name string, args ...string) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), env...)

	fmt.Printf("$ %s %s %s\n", strings.Join(env, " "), name, strings.Join(args, " "))
	err := cmd.Run()
	if err != nil {
		os.Exit(1)
	}
}

var scriptMap = map[string]func(){
	"dev:redis":  startRedis,
	"dev:scrape": scrape,
	"dev:serve":  serve,
	"dev:test":   test,
}

func startRedis() {
	cmd(nil, "docker", "run", "-d", "--rm", "--name", "cinemas-redis", "-p", "6379:6379", "redis:7")
}

// scrape writes a fresh snapshot under dev/.state, set debug_http_dir in
// config.local.json5 to also capture upstream exchanges for fixtures.
func scrape() {
	cmd(nil, "go", "run", "./cmd/cinemas", "scrape", "--verbose", "--out", devSnapshot)
}

func serve() {
	cmd(
		[]string{"CINEMAS_SNAPSHOT=" + devSnapshot, "CINEMAS_REDIS_ADDR=localhost:6379"},
		"go", "run", "./cmd/cinemas", "serve", "--verbose",
	)
}

func test() {
	cmd(nil, "go", "test", "./...")
}
