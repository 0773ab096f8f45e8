package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLockCommand creates the lock command.
func NewLockCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "lock <rule-id>",
		Short: "Take the edit lock on a rule",
		Long: `Take the edit lock on a rule. While locked, only the holder may change
or delete it. Locks older than lock_timeout are treated as released.
Use --force to take over a lock held by someone else.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Engine.LockRule(id, cmdCtx.Cfg.Actor, force); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Rule %d locked by %s", id, cmdCtx.Cfg.Actor))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Take over a lock held by someone else")
	return cmd
}

// NewUnlockCommand creates the unlock command.
func NewUnlockCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "unlock <rule-id>",
		Short: "Release the edit lock on a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Engine.UnlockRule(id, cmdCtx.Cfg.Actor, force); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Rule %d unlocked", id))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Release a lock held by someone else")
	return cmd
}
