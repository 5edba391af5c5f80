// rootipc-send is the root side of rootipcd for scripts that would rather
// not speak the file protocol by hand. Channel settings default to the
// IPC_DIR, IPC_CMD_PREFIX and IPC_RSP_PREFIX variables printed by rootipcd.
//
//	rootipc-send -type ping
//	rootipc-send -type echo '{"hello":"world"}'
//	echo 'free text' | rootipc-send -socket /run/rootipc/socket -
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/doughall/rootipc/internal/helper"
	"github.com/doughall/rootipc/internal/logging"
	"github.com/doughall/rootipc/internal/simpleipc"
	"github.com/doughall/rootipc/internal/version"
)

func main() {
	dir := flag.String("dir", os.Getenv("IPC_DIR"), "channel directory")
	cmdPrefix := flag.String("cmd-prefix", os.Getenv("IPC_CMD_PREFIX"), "command file prefix")
	rspPrefix := flag.String("rsp-prefix", os.Getenv("IPC_RSP_PREFIX"), "response file prefix")
	reqType := flag.String("type", string(helper.RequestTypePing), "request type: ping, echo, status, host, notify")
	socketPath := flag.String("socket", "", "write the payload to this file socket instead")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to wait for a response")
	logLevel := flag.String("log-level", "warn", "log level")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info("rootipc-send"))
		os.Exit(0)
	}

	logger := logging.SetupLogger(*logLevel, os.Stderr)

	payload, err := readPayload(flag.Args(), os.Stdin)
	if err != nil {
		logger.Error("failed to read payload", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *socketPath != "" {
		if err := helper.NewSocketClient(*socketPath).Send(ctx, payload); err != nil {
			logger.Error("socket write failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	cfg := simpleipc.ShellConfig{Dir: *dir, CommandPrefix: *cmdPrefix, ResponsePrefix: *rspPrefix}
	if cfg.Dir == "" || cfg.CommandPrefix == "" || cfg.ResponsePrefix == "" {
		logger.Error("channel not configured: set -dir, -cmd-prefix and -rsp-prefix or eval rootipcd output")
		os.Exit(2)
	}

	req := helper.Request{Type: helper.RequestType(*reqType), Payload: encodePayload(payload)}
	resp, err := helper.NewDirClient(cfg).Call(ctx, req)
	if err != nil {
		logger.Error("request failed",
			slog.String("type", *reqType),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	if len(resp.Output) > 0 {
		fmt.Println(string(resp.Output))
	}
}

// readPayload joins the arguments, or reads stdin when the only argument is "-".
func readPayload(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

// encodePayload passes JSON through untouched and quotes anything else.
func encodePayload(payload string) json.RawMessage {
	if payload == "" {
		return nil
	}
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(payload)
	return quoted
}
