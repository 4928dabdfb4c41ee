package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/types"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var stdin = bufio.NewReader(os.Stdin)

// confirm asks a y/N question on the terminal
func confirm(question string) bool {
	fmt.Printf("\n%s (y/N): ", question)

	response, err := stdin.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// readLine prompts for a single line of input
func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword prompts without echoing
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return readLine("")
	}
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// walletApprover is the terminal rendition of the wallet's confirmation
// popup. With autoYes every request is approved.
func walletApprover(autoYes bool) chain.Approver {
	var mu sync.Mutex
	return func(_ context.Context, prompt string) bool {
		if autoYes {
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Printf("\n%s %s", color.MagentaString("[wallet]"), prompt)
		return confirm("Approve?")
	}
}

// terminalPrompter asks the operator during disbursements
type terminalPrompter struct {
	autoYes bool
}

func (p terminalPrompter) Confirm(_ context.Context, prompt string) bool {
	if p.autoYes {
		return true
	}
	return confirm(prompt)
}

func (p terminalPrompter) Continue(_ context.Context, entry types.AirdropEntry, err error) bool {
	color.Red("  Transfer to %s failed: %s", entry.Address, chain.RevertReason(err))
	if p.autoYes {
		return true
	}
	return confirm("Continue with the next address?")
}
