package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/session"
)

var (
	profileFirstName string
	profileLastName  string
	profileAge       int
	profileDOB       string
	profileHeight    float64
	profileWeight    float64
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the profile, reconciled with the active cloud provider",
	RunE:  runProfileShow,
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create the profile or update individual fields",
	Long: `Creates the profile when none exists (first name, age, height and weight
are then required) or updates only the fields passed as flags.`,
	RunE: runProfileSet,
}

var profileClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the profile from this device",
	Long:  `Removes the local profile. Copies stored with cloud providers are left alone.`,
	RunE:  runProfileClear,
}

func init() {
	f := profileSetCmd.Flags()
	f.StringVar(&profileFirstName, "first-name", "", "First name")
	f.StringVar(&profileLastName, "last-name", "", "Last name")
	f.IntVar(&profileAge, "age", 0, "Age in years")
	f.StringVar(&profileDOB, "dob", "", "Date of birth (YYYY-MM-DD)")
	f.Float64Var(&profileHeight, "height", 0, "Height in cm")
	f.Float64Var(&profileWeight, "weight", 0, "Weight in kg")

	profileCmd.AddCommand(profileShowCmd, profileSetCmd, profileClearCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()
		p, err := s.Profiles.LoadProfile(loadCtx)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
		out := cmd.OutOrStdout()
		if p == nil {
			fmt.Fprintln(out, "No profile saved. Create one with: nutrilog profile set")
			return nil
		}

		name := p.FirstName
		if p.LastName != nil && *p.LastName != "" {
			name += " " + *p.LastName
		}
		fmt.Fprintf(out, "Name:    %s\n", name)
		fmt.Fprintf(out, "Age:     %d\n", p.Age)
		if p.DateOfBirth != nil {
			fmt.Fprintf(out, "Born:    %s\n", p.DateOfBirth.Format(dateLayout))
		}
		fmt.Fprintf(out, "Height:  %s cm\n", humanize.FtoaWithDigits(p.HeightCm, 1))
		fmt.Fprintf(out, "Weight:  %s kg\n", humanize.FtoaWithDigits(p.WeightKg, 1))
		fmt.Fprintf(out, "Updated: %s\n", humanize.Time(p.UpdatedAt))
		fmt.Fprintf(out, "Sync:    %s\n", s.Sync.CurrentCloudProvider().DisplayName())
		return nil
	})
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	patch, err := profilePatchFromFlags(cmd)
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return fmt.Errorf("nothing to change, pass at least one field flag")
	}

	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		out := cmd.OutOrStdout()
		exists, err := s.Profiles.HasProfile(ctx)
		if err != nil {
			return err
		}

		if exists {
			_, task, err := s.Profiles.UpdateProfile(ctx, patch)
			if err != nil {
				return fmt.Errorf("updating profile: %w", err)
			}
			fmt.Fprintln(out, "Profile updated")
			reportPush(ctx, out, task)
			return nil
		}

		p := patch.Apply(models.UserProfile{ID: s.Config.UserID})
		task, err := s.Profiles.SaveProfile(ctx, p)
		if err != nil {
			return fmt.Errorf("saving profile: %w", err)
		}
		fmt.Fprintln(out, "Profile created")
		reportPush(ctx, out, task)
		return nil
	})
}

// profilePatchFromFlags collects the flags the user actually passed.
func profilePatchFromFlags(cmd *cobra.Command) (models.ProfilePatch, error) {
	var patch models.ProfilePatch
	f := cmd.Flags()
	if f.Changed("first-name") {
		patch.FirstName = &profileFirstName
	}
	if f.Changed("last-name") {
		patch.LastName = &profileLastName
	}
	if f.Changed("age") {
		patch.Age = &profileAge
	}
	if f.Changed("height") {
		patch.HeightCm = &profileHeight
	}
	if f.Changed("weight") {
		patch.WeightKg = &profileWeight
	}
	if f.Changed("dob") {
		dob, err := time.Parse(dateLayout, profileDOB)
		if err != nil {
			return patch, fmt.Errorf("invalid --dob %q, expected YYYY-MM-DD", profileDOB)
		}
		patch.DateOfBirth = &dob
	}
	return patch, nil
}

func runProfileClear(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		if err := s.Profiles.ClearProfile(ctx); err != nil {
			return fmt.Errorf("clearing profile: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Local profile removed")
		return nil
	})
}
