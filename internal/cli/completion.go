package cli

import (
	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for snapcomp.

To load completions:

Bash:
  $ source <(snapcomp completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ snapcomp completion bash > /etc/bash_completion.d/snapcomp
  # macOS:
  $ snapcomp completion bash > $(brew --prefix)/etc/bash_completion.d/snapcomp

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ snapcomp completion zsh > "${fpath[1]}/_snapcomp"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ snapcomp completion fish | source

  # To load completions for each session, execute once:
  $ snapcomp completion fish > ~/.config/fish/completions/snapcomp.fish

PowerShell:
  PS> snapcomp completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> snapcomp completion powershell > snapcomp.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(c.Out)
			case "zsh":
				return cmd.Root().GenZshCompletion(c.Out)
			case "fish":
				return cmd.Root().GenFishCompletion(c.Out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(c.Out)
			}
			return nil
		},
	}

	return cmd
}
