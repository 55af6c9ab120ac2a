package main

import (
	"fmt"
	"time"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/recurring"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/internal/scheduler"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate recurring jobs up to a target date",
	Long: `Generate recurring jobs for every active contract whose next due date is on
or before the target. Without --company every company is processed.
Without --target the policy horizon from today is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		companyRaw, _ := cmd.Flags().GetString("company")
		targetRaw, _ := cmd.Flags().GetString("target")
		async, _ := cmd.Flags().GetBool("async")

		var companyID uuid.UUID
		if companyRaw != "" {
			id, err := uuid.Parse(companyRaw)
			if err != nil {
				return errors.Wrap(err, "invalid --company")
			}
			companyID = id
		}
		var target time.Time
		if targetRaw != "" {
			t, err := time.Parse(time.DateOnly, targetRaw)
			if err != nil {
				return errors.Wrap(err, "invalid --target, want YYYY-MM-DD")
			}
			target = t
		}

		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if async {
			client, err := scheduler.NewClient(e.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			payload := scheduler.GenerateRecurringPayload{Target: targetRaw}
			if companyID != uuid.Nil {
				payload.CompanyID = companyID.String()
			}
			if err := client.EnqueueGenerateRecurring(ctx, payload); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "recurring generation queued")
			return nil
		}

		if target.IsZero() {
			target = time.Now().UTC().AddDate(0, 0, e.cfg.GetDispatchPolicy().RecurringHorizonDays)
		}

		var results []recurring.GenerateResult
		if companyID != uuid.Nil {
			res, err := e.fleet.Recurring.Generate(ctx, companyID, target)
			if err != nil {
				return err
			}
			results = append(results, res)
		} else {
			results, err = e.fleet.Recurring.GenerateAll(ctx, target)
			if err != nil {
				return err
			}
		}

		return output(cmd, results, func() {
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  jobs created: %d  contracts updated: %d\n",
					r.CompanyID, r.JobsCreated, r.ContractsUpdated)
			}
		})
	},
}

var unavailableCmd = &cobra.Command{
	Use:   "unavailable <company-id> <technician-id>",
	Short: "Take a technician off duty",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		companyID, techID, err := parseIDs(args[0], args[1])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.fleet.Lifecycle.MarkTechnicianUnavailable(ctx, companyID, techID, transport.MarkUnavailableRequest{Reason: reason})
		if err != nil {
			return err
		}
		return output(cmd, res, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is unavailable; %d job(s) returned to pending\n", res.Technician.Name, len(res.FreedJobs))
		})
	},
}

var proposeCmd = &cobra.Command{
	Use:   "propose <company-id> <job-id>",
	Short: "Queue an assignment proposal for a pending job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		companyID, jobID, err := parseIDs(args[0], args[1])
		if err != nil {
			return err
		}
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		client, err := scheduler.NewClient(e.cfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		if err := client.EnqueueProposeJob(cmd.Context(), companyID, jobID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "proposal queued")
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report documents that break fleet invariants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		report, err := checkStore(cmd, e.store)
		if err != nil {
			return err
		}
		if err := output(cmd, report, func() {
			for _, c := range report {
				for _, v := range c.Violations {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", c.CompanyID, v)
				}
			}
			if len(report) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no violations")
			}
		}); err != nil {
			return err
		}
		if len(report) > 0 {
			return errors.Newf("%d company(ies) with violations", len(report))
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().String("company", "", "Only generate for this company ID")
	generateCmd.Flags().String("target", "", "Generate up to this date (YYYY-MM-DD)")
	generateCmd.Flags().Bool("async", false, "Queue the run on the worker instead of running it here")

	unavailableCmd.Flags().String("reason", "", "Why the technician is off duty")
	_ = unavailableCmd.MarkFlagRequired("reason")
}

type companyReport struct {
	CompanyID  uuid.UUID          `json:"companyId"`
	Violations []domain.Violation `json:"violations"`
}

// checkStore runs the fleet invariants over every company.
func checkStore(cmd *cobra.Command, store repository.Store) ([]companyReport, error) {
	ctx := cmd.Context()
	companies, err := store.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	var out []companyReport
	for _, id := range companies {
		jobs, err := store.ListJobs(ctx, id, repository.JobFilter{})
		if err != nil {
			return nil, err
		}
		techs, err := store.ListTechnicians(ctx, id)
		if err != nil {
			return nil, err
		}
		if v := domain.CheckFleet(jobs, techs); len(v) > 0 {
			out = append(out, companyReport{CompanyID: id, Violations: v})
		}
	}
	return out, nil
}

func parseIDs(company, other string) (uuid.UUID, uuid.UUID, error) {
	companyID, err := uuid.Parse(company)
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.Wrap(err, "invalid company id")
	}
	otherID, err := uuid.Parse(other)
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.Wrap(err, "invalid id")
	}
	return companyID, otherID, nil
}
