package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	verbose    = flag.Bool("v", false, "verbose output")
	race       = flag.Bool("race", true, "enable the race detector")
	cover      = flag.Bool("cover", false, "print coverage per package")
	timeout    = flag.Duration("timeout", 3*time.Minute, "test timeout")
	testRegexp = flag.String("run", "", "run only tests matching the regular expression")
	pkgs       = flag.String("pkg", "./...", "comma separated package patterns")
)

func main() {
	flag.Parse()

	args := []string{"test", "-count=1", fmt.Sprintf("-timeout=%s", timeout.String())}
	if *verbose {
		args = append(args, "-v")
	}
	if *race {
		args = append(args, "-race")
	}
	if *cover {
		args = append(args, "-cover")
	}
	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}
	args = append(args, strings.Split(*pkgs, ",")...)

	cmd := exec.Command("go", args...)
	// Blank credentials so no test can reach a real account.
	cmd.Env = append(os.Environ(), "TEST_ENV=true", "MEXC_API_KEY=", "MEXC_API_SECRET=", "OPENAI_API_KEY=", "CONFIG_FILE=")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running: go %s\n", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.Exit(1)
	}
}
