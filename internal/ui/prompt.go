package ui

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
)

// ConfirmDecommission asks the operator to type the app key back before a
// destructive teardown proceeds. Returns false when output is not a terminal,
// so scripted runs must pass --force explicitly.
func ConfirmDecommission(appKey string) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false
	}

	fmt.Printf("\n⚠️  Decommissioning %q removes its service, nginx config, certificate,\n", appKey)
	fmt.Println("   deployed files, database and role. Backups are left in place.")

	prompt := promptui.Prompt{
		Label: fmt.Sprintf("Type %q to confirm", appKey),
		Validate: func(s string) error {
			if s != appKey {
				return fmt.Errorf("input does not match app key")
			}
			return nil
		},
	}

	value, err := prompt.Run()
	return err == nil && value == appKey
}

// PromptSecret reads a masked secret value from the terminal.
func PromptSecret(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(s string) error {
			if s == "" {
				return fmt.Errorf("value cannot be empty")
			}
			return nil
		},
	}
	return prompt.Run()
}
