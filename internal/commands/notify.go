package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"jarvis/internal/service/webhook"
)

var notifyCmd = &cobra.Command{
	Use:   "notify <message>",
	Short: "Send one message to the n8n webhook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := webhook.NewNotifier(cfg.Webhook.URL, http.DefaultClient)
		return runNotify(cmd, n, args[0])
	},
}

func runNotify(cmd *cobra.Command, n *webhook.Notifier, message string) error {
	res, err := n.Notify(cmd.Context(), message)
	if err != nil {
		return err
	}
	if res.Failed() {
		log.Warn().Str("component", "webhook").Str("error", res.Error).Msg("webhook delivery failed")
	}
	return printResult(cmd.OutOrStdout(), res)
}

func printResult(w io.Writer, res webhook.Result) error {
	out, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
