package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/service/auth"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
	"github.com/jwalitptl/hmis-api/internal/service/medication"
)

// actor resolves the --as user into a principal, so that changes made from
// the CLI are authorized and audited like any other.
func actor(cmd *cobra.Command, e *env) (authz.Principal, error) {
	raw, _ := cmd.Flags().GetString("as")
	id, err := uuid.Parse(raw)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("--as must be a user id: %w", err)
	}
	p := e.services.Resolver.Resolve(cmd.Context(), id, "")
	if p.Status() != authz.StatusReady {
		return authz.Principal{}, fmt.Errorf("could not resolve roles for %s: %s", id, p.Status())
	}
	return p, nil
}

// operator is the administrator principal of commands that take no --as.
var operator = authz.Ready(uuid.Nil, "hmisctl", model.RoleAdmin)

func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a uuid: %w", name, err)
	}
	return id, nil
}

func permissionsCmd(withEnv withEnvFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect and seed the role permission matrix",
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the default grants that are missing; existing rows are left alone",
		RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
			n, err := e.services.RBAC.SeedDefaults(cmd.Context(), uuid.Nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d permission rows\n", n)
			return nil
		}),
	}
	cmd.AddCommand(seedCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Explain whether a user may perform an action on a module",
		RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
			userID, err := uuidFlag(cmd, "user")
			if err != nil {
				return err
			}
			module, _ := cmd.Flags().GetString("module")
			action, _ := cmd.Flags().GetString("action")

			p := e.services.Resolver.Resolve(cmd.Context(), userID, "")
			d := e.services.Engine.Check(cmd.Context(), p, model.Module(module), model.Action(action))
			verdict := "DENY"
			if d.Allowed {
				verdict = "ALLOW"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s:%s (rule %s, principal %s)\n", verdict, module, action, d.Rule, p.Status())
			return nil
		}),
	}
	checkCmd.Flags().String("user", "", "user id")
	checkCmd.Flags().String("module", "", "module name")
	checkCmd.Flags().String("action", string(model.ActionView), "view, create, edit or delete")
	_ = checkCmd.MarkFlagRequired("user")
	_ = checkCmd.MarkFlagRequired("module")
	cmd.AddCommand(checkCmd)

	matrixCmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print a user's capability on every module",
		RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
			userID, err := uuidFlag(cmd, "user")
			if err != nil {
				return err
			}
			p := e.services.Resolver.Resolve(cmd.Context(), userID, "")
			matrix := e.services.Engine.Matrix(cmd.Context(), p)

			mark := func(b bool) string {
				if b {
					return "x"
				}
				return "-"
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODULE\tVIEW\tCREATE\tEDIT\tDELETE")
			for _, m := range model.AllModules {
				c := matrix[m]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m, mark(c.CanView), mark(c.CanCreate), mark(c.CanEdit), mark(c.CanDelete))
			}
			return w.Flush()
		}),
	}
	matrixCmd.Flags().String("user", "", "user id")
	_ = matrixCmd.MarkFlagRequired("user")
	cmd.AddCommand(matrixCmd)

	return cmd
}

func usersCmd(withEnv withEnvFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage staff accounts and their roles",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an active staff account",
		RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password := os.Getenv("HMIS_NEW_USER_PASSWORD")
			if password == "" {
				return fmt.Errorf("HMIS_NEW_USER_PASSWORD must be set")
			}

			user, err := e.services.Auth.CreateUser(cmd.Context(), auth.CreateUserRequest{
				Email:    email,
				Name:     name,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.ID)
			return nil
		}),
	}
	createCmd.Flags().String("email", "", "login email")
	createCmd.Flags().String("name", "", "display name")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("name")
	cmd.AddCommand(createCmd)

	assignCmd := &cobra.Command{
		Use:   "assign-role",
		Short: "Grant a role to a user",
		RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
			userID, err := uuidFlag(cmd, "user")
			if err != nil {
				return err
			}
			role, _ := cmd.Flags().GetString("role")
			return e.services.RBAC.AssignRole(cmd.Context(), operator, userID, model.Role(role))
		}),
	}
	assignCmd.Flags().String("user", "", "user id")
	assignCmd.Flags().String("role", "", "role name")
	_ = assignCmd.MarkFlagRequired("user")
	_ = assignCmd.MarkFlagRequired("role")
	cmd.AddCommand(assignCmd)

	return cmd
}

func dosesCmd(withEnv withEnvFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doses",
		Short: "Work with scheduled medication doses",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the dose schedule of a prescription item",
		RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
			p, err := actor(cmd, e)
			if err != nil {
				return err
			}
			itemID, err := uuidFlag(cmd, "item")
			if err != nil {
				return err
			}
			prescriptionID, err := uuidFlag(cmd, "prescription")
			if err != nil {
				return err
			}
			patientID, err := uuidFlag(cmd, "patient")
			if err != nil {
				return err
			}
			startRaw, _ := cmd.Flags().GetString("start")
			start := time.Now().UTC()
			if startRaw != "" {
				if start, err = time.Parse(time.RFC3339, startRaw); err != nil {
					return fmt.Errorf("--start must be RFC 3339: %w", err)
				}
			}
			days, _ := cmd.Flags().GetInt("days")

			n, err := e.services.Medication.GenerateScheduledDoses(cmd.Context(), p, medication.GenerateRequest{
				PrescriptionID: prescriptionID,
				ItemID:         itemID,
				PatientID:      patientID,
				StartDate:      start,
				DaysAhead:      days,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generated %d doses\n", n)
			return nil
		}),
	}
	generateCmd.Flags().String("as", "", "id of the user the doses are generated as")
	generateCmd.Flags().String("item", "", "prescription item id")
	generateCmd.Flags().String("prescription", "", "prescription id")
	generateCmd.Flags().String("patient", "", "patient id")
	generateCmd.Flags().String("start", "", "window start, RFC 3339; defaults to now")
	generateCmd.Flags().Int("days", medication.DefaultDaysAhead, "days ahead to schedule")
	for _, f := range []string{"as", "item", "prescription", "patient"} {
		_ = generateCmd.MarkFlagRequired(f)
	}
	cmd.AddCommand(generateCmd)

	return cmd
}
