package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/arloliu/go-fri/config"
	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/fricmd"
	"github.com/spf13/cobra"
)

type commandOpts struct {
	mode      string
	stiffness []float64
	damping   []float64
}

func newCommandCmd(a *app) *cobra.Command {
	var opts commandOpts

	cmd := &cobra.Command{
		Use:   "command <name>",
		Short: "Connect, send a single command and print its outcome",
		Long: `Connects to the controller, sends one command and prints the outcome.

Commands: ` + strings.Join(commandNames(), ", ") + `

set-control-mode takes --mode position|joint-impedance (joint impedance uses
--stiffness and --damping), set-command-mode takes --mode position|wrench|torque,
set-config sends the link section of the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := fri.ParseCommandID(args[0])
			if err != nil {
				return err
			}

			command, err := buildCommand(id, a.cfg, opts)
			if err != nil {
				return err
			}

			ch, err := newChannel(cmd.Context(), a.cfg, a.logger, fricmd.WithReconnectAttempts(0))
			if err != nil {
				return err
			}
			defer ch.Close()

			return sendCommand(ch, a.cfg, command, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", "", "mode selector of set-control-mode and set-command-mode")
	cmd.Flags().Float64SliceVar(&opts.stiffness, "stiffness", nil, "joint stiffness values, one per joint")
	cmd.Flags().Float64SliceVar(&opts.damping, "damping", nil, "joint damping values, one per joint")

	return cmd
}

func commandNames() []string {
	ids := []fri.CommandID{
		fri.Connect, fri.Disconnect, fri.StartStreaming, fri.StopStreaming, fri.ActivateControl,
		fri.DeactivateControl, fri.SetConfig, fri.SetControlMode, fri.SetCommandMode,
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}

	return names
}

// buildCommand builds the command id with its payload.
func buildCommand(id fri.CommandID, cfg *config.Config, opts commandOpts) (fri.Command, error) {
	switch id {
	case fri.SetConfig:
		payload, err := fri.ConfigPayload(cfg.Link.RemotePort, cfg.Link.SendPeriodMs, cfg.Link.ReceiveMultiplier)
		if err != nil {
			return fri.Command{}, err
		}
		return fri.NewCommand(id, payload), nil

	case fri.SetControlMode:
		mode, err := fri.ParseControlMode(opts.mode)
		if err != nil {
			return fri.Command{}, err
		}
		if mode != fri.JointImpedanceControlMode {
			return fri.NewCommand(id, fri.ControlModePayload(mode)), nil
		}
		payload, err := fri.ImpedancePayload(opts.stiffness, opts.damping)
		if err != nil {
			return fri.Command{}, err
		}
		return fri.NewCommand(id, payload), nil

	case fri.SetCommandMode:
		mode, err := fri.ParseCommandMode(opts.mode)
		if err != nil {
			return fri.Command{}, err
		}
		return fri.NewCommand(id, fri.CommandModePayload(mode)), nil

	default:
		return fri.NewCommand(id, nil), nil
	}
}

// sendCommand connects the channel and, unless cmd is Connect itself, submits cmd.
// The outcome is printed to w.
func sendCommand(ch *fricmd.Channel, cfg *config.Config, cmd fri.Command, w io.Writer) error {
	c := cfg.Controller
	if !ch.Connect(c.Host, c.Port) {
		return fmt.Errorf("connect to %s:%d failed", c.Host, c.Port)
	}

	if cmd.ID == fri.Connect {
		fmt.Fprintf(w, "%s: %s\n", cmd.ID, fri.NewAccepted(fri.Connect, true))
		return nil
	}

	outcome, err := ch.Submit(cmd)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.ID, err)
	}
	fmt.Fprintf(w, "%s: %s\n", cmd.ID, outcome)

	if !outcome.Confirms(cmd.ID) {
		return fmt.Errorf("%s: %w", cmd.ID, fri.ErrCommandFailed)
	}

	return nil
}
