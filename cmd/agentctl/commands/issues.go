package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/store"
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "Inspect and edit the work DAG",
}

var (
	issueTitle    string
	issueBody     string
	issueTags     []string
	issuePriority int
	issueStatus   string
	issueTag      string
	issueOutcome  string
	depType       string
	depDst        string
)

var issuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		out := s.List(store.ListFilter{Status: store.Status(issueStatus), Tag: issueTag})
		return printJSON(out)
	},
}

var issuesReadyCmd = &cobra.Command{
	Use:   "ready [root-id]",
	Short: "List ready (open, unblocked, leaf) issues",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		root := ""
		if len(args) == 1 {
			root = args[0]
		}
		out, err := s.Ready(root, store.ReadyFilter{})
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var issuesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		issue, err := s.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(issue)
	},
}

var issuesCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()
		issue, err := s.Create(args[0], store.CreateOpts{Body: issueBody, Tags: issueTags, Priority: issuePriority})
		if err != nil {
			return err
		}
		return printJSON(issue)
	},
}

var issuesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Patch an issue's scalar fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()

		patch := store.Patch{}
		if cmd.Flags().Changed("title") {
			patch.Title = &issueTitle
		}
		if cmd.Flags().Changed("body") {
			patch.Body = &issueBody
		}
		if cmd.Flags().Changed("priority") {
			patch.Priority = &issuePriority
		}
		if cmd.Flags().Changed("tags") {
			patch.SetTags = true
			patch.Tags = issueTags
		}
		issue, err := s.Update(args[0], patch)
		if err != nil {
			return err
		}
		return printJSON(issue)
	},
}

var issuesClaimCmd = &cobra.Command{
	Use:   "claim <id>",
	Short: "Transition an issue from open to in_progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()
		if err := s.Claim(args[0]); err != nil {
			return err
		}
		fmt.Println("claimed", args[0])
		return nil
	},
}

var issuesOpenCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Reopen a closed issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()
		if err := s.Reopen(args[0]); err != nil {
			return err
		}
		fmt.Println("reopened", args[0])
		return nil
	},
}

var issuesCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close an issue with an outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()
		if err := s.Close(args[0], store.Outcome(issueOutcome)); err != nil {
			return err
		}
		fmt.Println("closed", args[0])
		return nil
	},
}

var issuesDepCmd = &cobra.Command{
	Use:   "dep <src>",
	Short: "Add a blocks/parent dependency edge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()
		if err := s.AddDep(args[0], store.DepType(depType), depDst); err != nil {
			return err
		}
		fmt.Println("added dep", depType, args[0], "->", depDst)
		return nil
	},
}

var issuesUndepCmd = &cobra.Command{
	Use:   "undep <src>",
	Short: "Remove a blocks/parent dependency edge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()
		removed, err := s.RemoveDep(args[0], store.DepType(depType), depDst)
		if err != nil {
			return err
		}
		fmt.Println("removed:", removed)
		return nil
	},
}

var issuesChildrenCmd = &cobra.Command{
	Use:   "children <id>",
	Short: "List an issue's direct children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		out, err := s.Children(args[0])
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var issuesValidateCmd = &cobra.Command{
	Use:   "validate <root-id>",
	Short: "Report whether every issue in a subtree is closed with a final outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		v, err := s.Validate(args[0])
		if err != nil {
			return err
		}
		return printJSON(v)
	},
}

func init() {
	issuesCreateCmd.Flags().StringVar(&issueBody, "body", "", "Issue body")
	issuesCreateCmd.Flags().StringSliceVar(&issueTags, "tags", nil, "Comma-separated tags")
	issuesCreateCmd.Flags().IntVar(&issuePriority, "priority", 3, "Priority 1 (highest) .. 5 (lowest)")

	issuesUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issuesUpdateCmd.Flags().StringVar(&issueBody, "body", "", "New body")
	issuesUpdateCmd.Flags().IntVar(&issuePriority, "priority", 0, "New priority")
	issuesUpdateCmd.Flags().StringSliceVar(&issueTags, "tags", nil, "Replace tags (comma-separated)")

	issuesListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status")
	issuesListCmd.Flags().StringVar(&issueTag, "tag", "", "Filter by tag")

	issuesCloseCmd.Flags().StringVar(&issueOutcome, "outcome", string(store.OutcomeSuccess), "Close outcome")

	issuesDepCmd.Flags().StringVar(&depType, "type", string(store.DepBlocks), "Dependency type: blocks|parent")
	issuesDepCmd.Flags().StringVar(&depDst, "dst", "", "Destination issue id")
	issuesUndepCmd.Flags().StringVar(&depType, "type", string(store.DepBlocks), "Dependency type: blocks|parent")
	issuesUndepCmd.Flags().StringVar(&depDst, "dst", "", "Destination issue id")

	issuesCmd.AddCommand(issuesListCmd, issuesReadyCmd, issuesGetCmd, issuesCreateCmd, issuesUpdateCmd,
		issuesClaimCmd, issuesOpenCmd, issuesCloseCmd, issuesDepCmd, issuesUndepCmd, issuesChildrenCmd, issuesValidateCmd)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
