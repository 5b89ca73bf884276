package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/patients/internal/domain/account"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/pkg/pagination"
)

const demoPassword = "1234"

type demoUser struct {
	username string
	roles    []string
}

var (
	demoRoles = []string{auth.RoleUser, auth.RoleAdmin}

	demoUsers = []demoUser{
		{username: "user1", roles: []string{auth.RoleUser}},
		{username: "user2", roles: []string{auth.RoleUser}},
		{username: "admin", roles: []string{auth.RoleUser, auth.RoleAdmin}},
	}

	demoPatients = []struct {
		name      string
		birthDate string
		sick      bool
		score     int
	}{
		{"Hassan", "1990-03-12", false, 120},
		{"Mohamed", "1985-07-01", true, 320},
		{"Yasmine", "2001-11-23", true, 150},
		{"Hanae", "1978-05-30", false, 210},
		{"Imane", "1995-09-09", false, 180},
	}
)

// seedReport lists what a seeding run created and what already existed.
type seedReport struct {
	Created []string
	Skipped []string
}

func (r *seedReport) created(format string, args ...interface{}) {
	r.Created = append(r.Created, fmt.Sprintf(format, args...))
}

func (r *seedReport) skipped(format string, args ...interface{}) {
	r.Skipped = append(r.Skipped, fmt.Sprintf(format, args...))
}

func (r *seedReport) log(logger zerolog.Logger) {
	logger.Info().Strs("created", r.Created).Strs("skipped", r.Skipped).Msg("demo data seeded")
}

// seedDemoData creates the demo roles, users and patients. Entries that
// already exist are left alone, so it can run on every start.
func seedDemoData(ctx context.Context, accounts *account.Service, patients *patient.Service, logger zerolog.Logger) (*seedReport, error) {
	report := &seedReport{}

	for _, name := range demoRoles {
		_, err := accounts.AddNewRole(ctx, name)
		switch {
		case errors.Is(err, apperr.ErrConflict):
			report.skipped("role %s", name)
		case err != nil:
			return nil, fmt.Errorf("seed role %s: %w", name, err)
		default:
			report.created("role %s", name)
		}
	}

	for _, u := range demoUsers {
		_, err := accounts.AddNewUser(ctx, u.username, demoPassword, demoPassword, u.username+"@example.com")
		switch {
		case errors.Is(err, apperr.ErrConflict):
			report.skipped("user %s", u.username)
		case err != nil:
			return nil, fmt.Errorf("seed user %s: %w", u.username, err)
		default:
			report.created("user %s", u.username)
		}
		for _, role := range u.roles {
			if err := accounts.AddRoleToUser(ctx, u.username, role); err != nil {
				return nil, fmt.Errorf("grant %s to %s: %w", role, u.username, err)
			}
		}
	}

	existing, err := patients.Search(ctx, "", pagination.Params{Page: 0, Size: 1})
	if err != nil {
		return nil, err
	}
	if existing.Total > 0 {
		report.skipped("patients (%d present)", existing.Total)
		return report, nil
	}
	for _, d := range demoPatients {
		birth, err := time.Parse(patient.DateLayout, d.birthDate)
		if err != nil {
			return nil, err
		}
		p := &patient.Patient{Name: d.name, BirthDate: &birth, Sick: d.sick, Score: d.score}
		if err := patients.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("seed patient %s: %w", d.name, err)
		}
		report.created("patient %s", d.name)
	}
	logger.Debug().Int("patients", len(demoPatients)).Msg("demo patients created")
	return report, nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo roles, users and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app, logger zerolog.Logger) error {
				report, err := seedDemoData(ctx, a.Accounts, a.Patients, logger)
				if err != nil {
					return err
				}
				report.log(logger)
				fmt.Printf("Created %d, skipped %d.\n", len(report.Created), len(report.Skipped))
				return nil
			})
		},
	}
}
