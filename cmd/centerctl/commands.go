package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/auth"
	"github.com/garyjia/repair-center/internal/client"
	"github.com/garyjia/repair-center/internal/config"
	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return n, nil
}

// parsePart parses name:quantity:unit_cost, with the cost in cents
func parsePart(s string) (entity.Part, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return entity.Part{}, fmt.Errorf("part %q: want name:quantity:unit_cost", s)
	}
	qty, err := strconv.Atoi(fields[1])
	if err != nil {
		return entity.Part{}, fmt.Errorf("part %q: bad quantity: %w", s, err)
	}
	cost, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return entity.Part{}, fmt.Errorf("part %q: bad unit cost: %w", s, err)
	}
	return entity.Part{Name: fields[0], Quantity: qty, UnitCost: cost}, nil
}

func tokenCommand() *cobra.Command {
	var (
		configPath string
		actor      entity.Actor
		role       string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the server's secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if actor.Role, err = entity.ParseRole(role); err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(auth.Config{
				Secret:   cfg.Auth.JWTSecret,
				Issuer:   cfg.Auth.Issuer,
				TokenTTL: cfg.Auth.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, err := tokens.Issue(actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to server config file")
	cmd.Flags().StringVar(&actor.ID, "id", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "ADMIN, CENTER_MANAGER, TECHNICIAN or BRANCH_MANAGER")
	cmd.Flags().StringVar(&actor.BranchID, "branch", "", "actor branch (not needed for ADMIN)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func receiveCommand(g *globalFlags) *cobra.Command {
	var in entity.ReceiveInput

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Register a machine arriving at the center",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := g.client().Receive(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&in.MachineSerial, "serial", "", "machine serial number")
	cmd.Flags().StringVar(&in.OriginBranchID, "origin", "", "branch that sent the machine")
	cmd.Flags().StringVar(&in.CenterBranchID, "center", "", "maintenance center branch")
	cmd.Flags().StringVar(&in.CustomerID, "customer", "", "customer id")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "intake notes")
	_ = cmd.MarkFlagRequired("serial")
	_ = cmd.MarkFlagRequired("origin")
	_ = cmd.MarkFlagRequired("center")
	return cmd
}

func transitionCommand(g *globalFlags) *cobra.Command {
	var (
		payload    workflow.Payload
		resolution string
		parts      []string
		version    int64
	)

	cmd := &cobra.Command{
		Use:   "transition <instance-id> <action>",
		Short: "Apply an action to a repair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			for _, p := range parts {
				part, err := parsePart(p)
				if err != nil {
					return err
				}
				payload.Parts = append(payload.Parts, part)
			}
			payload.Resolution = domainwf.Resolution(strings.ToUpper(resolution))

			req := client.TransitionRequest{
				Action:  domainwf.Action(strings.ToUpper(args[1])),
				Payload: payload,
			}
			if cmd.Flags().Changed("version") {
				req.Version = &version
			}

			out, err := g.client().Transition(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&payload.TechnicianID, "technician", "", "technician to assign")
	cmd.Flags().StringVar(&resolution, "resolution", "", "REPAIRED, SCRAPPED or RETURNED_AS_IS")
	cmd.Flags().StringVar(&payload.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&payload.Reason, "reason", "", "rejection reason")
	cmd.Flags().StringArrayVar(&parts, "part", nil, "part as name:quantity:unit_cost (repeatable)")
	cmd.Flags().Int64Var(&version, "version", 0, "expected instance version")
	return cmd
}

func getCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <instance-id>",
		Short: "Show a repair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			inst, err := g.client().GetInstance(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inst)
		},
	}
}

func logCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "log <instance-id>",
		Short: "Show the transition log of a repair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			entries, err := g.client().GetLog(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
}

func approveCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <approval-id>",
		Short: "Approve a pending cost request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out, err := g.client().Approve(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func rejectCommand(g *globalFlags) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <approval-id>",
		Short: "Reject a pending cost request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out, err := g.client().Reject(cmd.Context(), id, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the cost was rejected")
	return cmd
}

func settleCommand(g *globalFlags) *cobra.Command {
	var receipt, place string

	cmd := &cobra.Command{
		Use:   "settle <payment-id>",
		Short: "Mark a payment as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			payment, err := g.client().Settle(cmd.Context(), id, receipt, entity.PaymentPlace(strings.ToUpper(place)))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), payment)
		},
	}
	cmd.Flags().StringVar(&receipt, "receipt", "", "receipt number")
	cmd.Flags().StringVar(&place, "place", string(entity.PaymentPlaceCenterCashier), "CENTER_CASHIER, BRANCH_CASHIER or BANK_TRANSFER")
	_ = cmd.MarkFlagRequired("receipt")
	return cmd
}

func summaryCommand(g *globalFlags) *cobra.Command {
	var scope, period, at string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show payment totals for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := entity.ParsePeriod(period)
			if err != nil {
				return err
			}
			when := time.Now()
			if at != "" {
				if when, err = time.Parse(time.DateOnly, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			summary, err := g.client().Summary(cmd.Context(), entity.Scope(scope), p, when)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", entity.ScopeAll, "all, or a branch id")
	cmd.Flags().StringVar(&period, "period", string(entity.PeriodMonth), "day, month, quarter or year")
	cmd.Flags().StringVar(&at, "at", "", "a date inside the period (YYYY-MM-DD), default today")
	return cmd
}
