// Command fakeagent is a minimal interactive agent for exercising openbbox wrap by hand.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	delay := 50 * time.Millisecond
	if v := os.Getenv("FAKEAGENT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			delay = d
		}
	}

	fmt.Println("fakeagent ready. Type a request, or \"exit\" to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			fmt.Println("bye")
			return
		}
		// Colour and cursor sequences mimic a real agent's output.
		fmt.Print("\x1b[2m thinking…\x1b[0m\r\x1b[K")
		time.Sleep(delay)
		fmt.Printf("I looked into %q and updated the relevant files.\n", line)
		time.Sleep(delay / 5)
		fmt.Printf("[Thinking: the request %q needed a small, targeted change]\n", line)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
