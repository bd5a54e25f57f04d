package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"escrowline/internal/app"
	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/engine"
	"escrowline/internal/engine/auth"
	"escrowline/internal/repo"
	"escrowline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "el",
	Short: "Escrowline CLI",
	Long: `Escrowline runs freelance contracts and their milestone escrow.
- Contract: an offer from a client to a freelancer; pending_acceptance -> active -> completed (cancelled and revision_requested are the other exits).
- Milestone: a slice of the contract amount; pending -> active (funded) -> in_review (submitted) -> completed (approved).
- Payment: one escrow record per funded milestone; escrowed money is released to the freelancer on approval, minus the platform fee.
- Dispute: either party can raise one while the contract is live; the platform admin is notified.
- Events: every state change is written to an append-only log, view with 'el contract events'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ESCROWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(disputeCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{Use: "contract", Short: "Manage contracts"}
	c.AddCommand(contractCreateCmd())
	c.AddCommand(contractShowCmd())
	c.AddCommand(contractListCmd())
	c.AddCommand(contractDecisionCmd("accept", "Accept an offered contract (freelancer)", engine.Engine.AcceptContract))
	c.AddCommand(contractDecisionCmd("reject", "Reject an offered contract (freelancer)", engine.Engine.RejectContract))
	c.AddCommand(contractDecisionCmd("request-revision", "Ask the client to revise the offer (freelancer)", engine.Engine.RequestRevision))
	c.AddCommand(contractResubmitCmd())
	c.AddCommand(contractProgressCmd())
	c.AddCommand(contractEventsCmd())
	c.AddCommand(contractPaymentsCmd())
	return c
}

// contractFile is the JSON document accepted by 'contract create'.
type contractFile struct {
	ProjectID     string               `json:"project_id"`
	ProposalID    string               `json:"proposal_id"`
	FreelancerID  string               `json:"freelancer_id"`
	Title         string               `json:"title"`
	Terms         domain.Terms         `json:"terms"`
	Milestones    []domain.Milestone   `json:"milestones"`
	TimeTracking  *domain.TimeTracking `json:"time_tracking"`
	PaymentMethod domain.MethodRecord  `json:"payment_method"`
}

func readContractFile(path string) (contractFile, error) {
	var cf contractFile
	var data []byte
	var err error
	if path == "-" {
		data, err = readAllStdin()
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return cf, err
	}
	if err := json.Unmarshal(data, &cf); err != nil {
		return cf, fmt.Errorf("parse %s: %w", path, err)
	}
	return cf, nil
}

func contractCreateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contract from an accepted proposal (client)",
		Long:  "Reads a JSON document with project_id, freelancer_id, title, terms, milestones and payment_method. The acting user is the client.",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			cf, err := readContractFile(file)
			if err != nil {
				return err
			}
			method, err := cf.PaymentMethod.Method()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in := engine.CreateContractInput{
					ProjectID:    cf.ProjectID,
					ProposalID:   cf.ProposalID,
					ClientID:     actorID,
					FreelancerID: cf.FreelancerID,
					Title:        cf.Title,
					Terms:        cf.Terms,
					Milestones:   cf.Milestones,
					Method:       method,
				}
				if cf.TimeTracking != nil {
					in.TimeTracking = *cf.TimeTracking
				}
				res, err := e.CreateContract(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "contract document (- for stdin)")
	return cmd
}

func contractShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <contract-id>",
		Short: "Show a contract and its milestones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetContract(ctx, args[0])
				if err != nil {
					return err
				}
				if _, err := auth.RequireParty(c, actorID, "view the contract"); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("%s  %s\n", c.ID, c.Title)
				fmt.Printf("status=%s progress=%d%% reported=%d%% version=%d\n", c.Status, c.Progress, c.ReportedProgress, c.Version)
				fmt.Printf("client=%s freelancer=%s amount=%s\n", c.ClientID, c.FreelancerID, formatMoney(c.Terms.Amount, c.Terms.Currency))
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Milestone", "Title", "Amount", "Status", "Due"})
				for _, m := range c.Milestones {
					tw.AppendRow(table.Row{m.ID, m.Title, formatMoney(m.Amount, c.Terms.Currency), m.Status, m.DueDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func contractListCmd() *cobra.Command {
	var f repo.ContractFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts the acting user is party to",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			f.PartyID = actorID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListContracts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Client", "Freelancer", "Amount", "Progress"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Title, c.Status, c.ClientID, c.FreelancerID, formatMoney(c.Terms.Amount, c.Terms.Currency), fmt.Sprintf("%d%%", c.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

type decisionFunc func(engine.Engine, context.Context, engine.DecisionInput) (engine.ContractResult, error)

func contractDecisionCmd(use, short string, decide decisionFunc) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   use + " <contract-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := decide(e, ctx, engine.DecisionInput{ContractID: args[0], FreelancerID: actorID, Comment: comment})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "comment for the client")
	return cmd
}

func contractResubmitCmd() *cobra.Command {
	var title, comment, milestonesFile string
	cmd := &cobra.Command{
		Use:   "resubmit <contract-id>",
		Short: "Offer a revised contract again (client)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			in := engine.ResubmitContractInput{ContractID: args[0], ClientID: actorID, Comment: comment}
			if cmd.Flags().Changed("title") {
				in.Title = &title
			}
			if milestonesFile != "" {
				data, err := os.ReadFile(milestonesFile)
				if err != nil {
					return err
				}
				var ms []domain.Milestone
				if err := json.Unmarshal(data, &ms); err != nil {
					return fmt.Errorf("parse %s: %w", milestonesFile, err)
				}
				in.Milestones = ms
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ResubmitContract(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&milestonesFile, "milestones", "", "JSON file with the replacement milestone list")
	cmd.Flags().StringVar(&comment, "comment", "", "comment for the freelancer")
	return cmd
}

func contractProgressCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "progress <contract-id> <percent>",
		Short: "Report overall progress (freelancer)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			var pct int
			if _, err := fmt.Sscanf(args[1], "%d", &pct); err != nil {
				return fmt.Errorf("percent must be an integer: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UpdateContractProgress(ctx, engine.ProgressInput{ContractID: args[0], FreelancerID: actorID, Progress: pct, Comment: comment})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "progress note")
	return cmd
}

func contractEventsCmd() *cobra.Command {
	var eventType string
	cmd := &cobra.Command{
		Use:   "events <contract-id>",
		Short: "Show the audit log of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListContractEvents(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				var out []domain.ContractEvent
				for _, evt := range items {
					if eventType == "" || evt.Type == eventType {
						out = append(out, evt)
					}
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Actor", "Role", "Comment"})
				for _, evt := range out {
					tw.AppendRow(table.Row{evt.ID, evt.CreatedAt, evt.Type, evt.ActorID, evt.ActorRole, evt.Comment})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "event type filter")
	return cmd
}

func contractPaymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments <contract-id>",
		Short: "List escrow payments of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListPayments(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Milestone", "Status", "Gross", "Fee", "Net", "Method"})
				for _, p := range items {
					cur := p.Amount.Currency
					tw.AppendRow(table.Row{p.ID, p.MilestoneID, p.Status, formatMoney(p.Amount.Gross, cur), formatMoney(p.Amount.Fee, cur), formatMoney(p.Amount.Net, cur), p.Method.Type})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func milestoneCmd() *cobra.Command {
	m := &cobra.Command{Use: "milestone", Short: "Fund, submit and review milestones"}
	m.AddCommand(milestoneFundCmd())
	m.AddCommand(milestoneSubmitCmd())
	m.AddCommand(milestoneApproveCmd())
	m.AddCommand(milestoneRevisionCmd())
	return m
}

func milestoneFundCmd() *cobra.Command {
	var rec domain.MethodRecord
	var kind string
	cmd := &cobra.Command{
		Use:   "fund <contract-id> <milestone-id>",
		Short: "Move a milestone amount into escrow (client)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			rec.Type = domain.PaymentMethodKind(kind)
			method, err := rec.Method()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.FundMilestone(ctx, engine.FundMilestoneInput{ContractID: args[0], MilestoneID: args[1], ClientID: actorID, Method: method})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "method", "card", "payment method (card, paypal, bank_transfer, mtn_momo, orange_momo)")
	cmd.Flags().StringVar(&rec.Brand, "brand", "", "card brand")
	cmd.Flags().StringVar(&rec.Last4, "last4", "", "card last four digits")
	cmd.Flags().StringVar(&rec.Email, "email", "", "paypal email")
	cmd.Flags().StringVar(&rec.BankName, "bank", "", "bank name")
	cmd.Flags().StringVar(&rec.AccountRef, "account-ref", "", "bank account reference")
	cmd.Flags().StringVar(&rec.PhoneNumber, "phone", "", "mobile money phone number")
	cmd.Flags().StringVar(&rec.AccountName, "account-name", "", "mobile money account name")
	return cmd
}

func milestoneSubmitCmd() *cobra.Command {
	var comment, description string
	var deliverables, links, files []string
	cmd := &cobra.Command{
		Use:   "submit <contract-id> <milestone-id>",
		Short: "Submit milestone work for review (freelancer)",
		Long:  "Files passed with --attach are uploaded to the attachment store and referenced from the submission.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in := engine.SubmitMilestoneInput{ContractID: args[0], MilestoneID: args[1], FreelancerID: actorID, Comment: comment}
				if cmd.Flags().Changed("deliverable") {
					in.Deliverables = deliverables
				}
				if description != "" || len(links) > 0 || len(files) > 0 {
					sub := &domain.SubmissionDetails{Description: description, Links: links}
					for _, path := range files {
						ref, err := attachFile(ctx, e, path)
						if err != nil {
							return err
						}
						sub.Files = append(sub.Files, ref)
					}
					in.Submission = sub
				}
				res, err := e.SubmitMilestone(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "note for the client")
	cmd.Flags().StringVar(&description, "description", "", "submission description")
	cmd.Flags().StringSliceVar(&deliverables, "deliverable", nil, "deliverable (repeatable, replaces the list)")
	cmd.Flags().StringSliceVar(&links, "link", nil, "link to the work (repeatable)")
	cmd.Flags().StringSliceVar(&files, "attach", nil, "file to upload (repeatable)")
	return cmd
}

func attachFile(ctx context.Context, e engine.Engine, path string) (domain.FileRef, error) {
	if e.Attachments == nil {
		return domain.FileRef{}, fmt.Errorf("attachment storage is not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.FileRef{}, err
	}
	ref, err := e.Attachments.Put(ctx, data)
	if err != nil {
		return domain.FileRef{}, err
	}
	return domain.FileRef{
		Name:        filepath.Base(path),
		Ref:         ref,
		ContentType: http.DetectContentType(data),
		Size:        int64(len(data)),
	}, nil
}

func milestoneApproveCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "approve <contract-id> <milestone-id>",
		Short: "Approve submitted work and release escrow (client)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ApproveMilestone(ctx, engine.ApproveMilestoneInput{ContractID: args[0], MilestoneID: args[1], ClientID: actorID, Comment: comment})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "note for the freelancer")
	return cmd
}

func milestoneRevisionCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "request-revision <contract-id> <milestone-id>",
		Short: "Send submitted work back to the freelancer (client)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RequestMilestoneRevision(ctx, engine.MilestoneRevisionInput{ContractID: args[0], MilestoneID: args[1], ClientID: actorID, Notes: notes})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "what needs to change")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

func disputeCmd() *cobra.Command {
	d := &cobra.Command{Use: "dispute", Short: "Raise and inspect disputes"}
	d.AddCommand(disputeOpenCmd())
	d.AddCommand(disputeListCmd())
	return d
}

func disputeOpenCmd() *cobra.Command {
	var reason, milestoneID, userType string
	cmd := &cobra.Command{
		Use:   "open <contract-id>",
		Short: "Open a dispute on a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.OpenDispute(ctx, engine.OpenDisputeInput{
					ContractID:  args[0],
					UserID:      actorID,
					UserType:    domain.Role(userType),
					Reason:      reason,
					MilestoneID: milestoneID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "dispute reason")
	cmd.Flags().StringVar(&milestoneID, "milestone", "", "milestone the dispute is about")
	cmd.Flags().StringVar(&userType, "as", "", "caller side (client or freelancer)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func disputeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <contract-id>",
		Short: "List disputes on a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListDisputes(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Raised by", "Role", "Milestone", "Reason"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Status, d.RaisedBy, d.RaisedByRole, d.MilestoneID, d.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Short: "Read the acting user's notifications"}
	n.AddCommand(notificationListCmd())
	n.AddCommand(notificationReadCmd())
	return n
}

func notificationListCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListNotifications(ctx, actorID, unread, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Title", "Read"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.CreatedAt, n.Type, n.Title, n.IsRead})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.MarkNotificationRead(ctx, actorID, args[0])
			})
		},
	}
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	k.AddCommand(apiKeyDeleteCmd())
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plain, err := repo.GenerateAPIKey()
				if err != nil {
					return err
				}
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(plain),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": plain})
				}
				fmt.Printf("API key %s created for %s. Store it now, it is not shown again:\n%s\n", key.ID, actorID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the acting user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created", "Last used"})
				for _, k := range keys {
					last := ""
					if k.LastUsedAt != nil {
						last = *k.LastUsedAt
					}
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt, last})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := requireActor()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0], actorID)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect escrowline.yml"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(a *app.Context) error {
				return printJSONOrTable(a.Config)
			})
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(a *app.Context) error {
				authCfg := server.AuthConfig{
					JWTSecret:              os.Getenv("ESCROWLINE_JWT_SECRET"),
					AllowLegacyActorHeader: legacyActorHeader,
					EnableDevLogin:         devLogin,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("ESCROWLINE_JWT_SECRET is required for bearer auth")
				}
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth:     authCfg,
					RateLimit: server.RateLimitConfig{
						RPS:   a.Config.Server.RateLimit.RPS,
						Burst: a.Config.Server.RateLimit.Burst,
					},
					Log: a.Log,
				})
				if err != nil {
					return err
				}
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				server.StartWebhookDispatcher(ctx, a.Engine.Repo, a.Config.Webhooks, a.Log)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					defer stop()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving escrowline api")
				fmt.Printf("Serving Escrowline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().BoolVar(&legacyActorHeader, "allow-actor-header", false, "trust X-Actor-Id without credentials (local testing only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}

func requireActor() (string, error) {
	actorID := strings.TrimSpace(viper.GetString("actor-id"))
	if actorID == "" {
		return "", fmt.Errorf("--actor-id (or ESCROWLINE_ACTOR_ID) is required")
	}
	return actorID, nil
}

func withApp(ctx context.Context, metrics bool, fn func(*app.Context) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Console:   !viper.GetBool("json"),
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, false, func(a *app.Context) error {
		return fn(ctx, a.Engine)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withApp(ctx, false, func(a *app.Context) error {
		return fn(ctx, a.Engine.Repo)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}

func readAllStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err == nil && stat.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no contract document on stdin, pass --file")
	}
	return io.ReadAll(os.Stdin)
}
