package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/identity"
	"github.com/agentctl/agentctl/internal/serve"
)

var (
	linkOperatorID string
	linkChannel    string
	linkTenantID   string
	linkActorID    string
	linkRole       string
	unlinkReason   string

	opProvider string
	opModel    string
	opThinking string
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Identity bindings and operator configuration",
}

func openIdentityTable() (*config.Paths, *identity.Table, error) {
	paths, err := openPaths()
	if err != nil {
		return nil, nil, err
	}
	t, err := identity.Open(paths.IdentitiesLog())
	if err != nil {
		return nil, nil, err
	}
	return paths, t, nil
}

var controlLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Bind a channel identity to an operator role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, t, err := openIdentityTable()
		if err != nil {
			return err
		}
		defer t.Close()
		b, err := t.Link(linkOperatorID, identity.Channel(linkChannel), linkTenantID, linkActorID, identity.Role(linkRole))
		if err != nil {
			return err
		}
		return printJSON(b)
	},
}

var controlUnlinkCmd = &cobra.Command{
	Use:   "unlink <binding-id>",
	Short: "Revoke an identity binding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, t, err := openIdentityTable()
		if err != nil {
			return err
		}
		defer t.Close()
		if err := t.Unlink(args[0], unlinkReason); err != nil {
			return err
		}
		fmt.Println("revoked", args[0])
		return nil
	},
}

var controlIdentitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List identity bindings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, t, err := openIdentityTable()
		if err != nil {
			return err
		}
		defer t.Close()
		return printJSON(t.List())
	},
}

var controlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the merged workspace configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := openPaths()
		if err != nil {
			return err
		}
		cfg, err := config.Load(paths.Root)
		if err != nil {
			return err
		}
		return printJSON(cfg)
	},
}

var controlOperatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "View or update operator provider/model/thinking defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := openPaths()
		if err != nil {
			return err
		}
		cfg, err := config.Load(paths.Root)
		if err != nil {
			return err
		}
		changed := false
		if opProvider != "" {
			cfg.Operator.Provider = opProvider
			changed = true
		}
		if opModel != "" {
			cfg.Operator.Model = opModel
			changed = true
		}
		if opThinking != "" {
			cfg.Operator.Thinking = opThinking
			changed = true
		}
		if changed {
			if err := config.Save(paths.Root, cfg); err != nil {
				return err
			}
		}
		return printJSON(cfg.Operator)
	},
}

var controlReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the running control plane to reload its configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := controlPlaneRecord()
		if err != nil {
			return err
		}
		return postReload(cmd.Context(), rec.URL)
	},
}

// controlPlaneRecord resolves the live server's discovery record, failing
// if none is running.
func controlPlaneRecord() (*serve.Record, error) {
	paths, err := openPaths()
	if err != nil {
		return nil, err
	}
	rec, err := serve.ReadRecord(paths.DiscoveryFile())
	if err != nil {
		return nil, err
	}
	if rec == nil || !serve.IsAlive(rec.PID) {
		return nil, errkind.New(errkind.ServerUnreachable, "no running control-plane server discovered")
	}
	return rec, nil
}

func postReload(ctx context.Context, url string) error {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url+"/api/control-plane/reload", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.ServerUnreachable, "reload request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errkind.Newf(errkind.RequestRejected, "reload rejected: %s", resp.Status)
	}
	fmt.Println("reloaded")
	return nil
}

func init() {
	controlLinkCmd.Flags().StringVar(&linkOperatorID, "operator-id", "", "Operator id to bind")
	controlLinkCmd.Flags().StringVar(&linkChannel, "channel", "", "Channel (chat_a|chat_b|chat_c|email)")
	controlLinkCmd.Flags().StringVar(&linkTenantID, "tenant", "", "Channel tenant id")
	controlLinkCmd.Flags().StringVar(&linkActorID, "actor", "", "Channel actor id")
	controlLinkCmd.Flags().StringVar(&linkRole, "role", "contributor", "Role (operator|contributor|viewer)")

	controlUnlinkCmd.Flags().StringVar(&unlinkReason, "reason", "", "Revocation reason")

	controlOperatorCmd.Flags().StringVar(&opProvider, "provider", "", "Set the default operator provider")
	controlOperatorCmd.Flags().StringVar(&opModel, "model", "", "Set the default operator model")
	controlOperatorCmd.Flags().StringVar(&opThinking, "thinking", "", "Set the default operator thinking level")

	controlCmd.AddCommand(controlLinkCmd, controlUnlinkCmd, controlIdentitiesCmd, controlStatusCmd, controlOperatorCmd, controlReloadCmd)
}
