package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

var forumCmd = &cobra.Command{
	Use:   "forum",
	Short: "Post to and read the cross-issue forum",
}

var (
	forumTopic  string
	forumAuthor string
	forumLimit  int
)

var forumPostCmd = &cobra.Command{
	Use:   "post <message...>",
	Short: "Post a message to a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()
		msg, err := s.Post(forumTopic, strings.Join(args, " "), forumAuthor)
		if err != nil {
			return err
		}
		return printJSON(msg)
	},
}

var forumReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read messages, optionally filtered by topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		return printJSON(s.Read(forumTopic, forumLimit))
	},
}

var forumTopicsCmd = &cobra.Command{
	Use:   "topics [prefix]",
	Short: "List topics, optionally filtered by prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		return printJSON(s.Topics(prefix))
	},
}

func init() {
	forumPostCmd.Flags().StringVar(&forumTopic, "topic", "", "Topic to post to")
	forumPostCmd.Flags().StringVar(&forumAuthor, "author", "cli", "Author name")
	forumReadCmd.Flags().StringVar(&forumTopic, "topic", "", "Topic to read (empty for all)")
	forumReadCmd.Flags().IntVar(&forumLimit, "limit", 50, "Max messages to return")

	forumCmd.AddCommand(forumPostCmd, forumReadCmd, forumTopicsCmd)
}
