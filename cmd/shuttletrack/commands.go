package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shuttletrack/internal/assignment"
)

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login <username-or-email>",
	Short: "Sign in and resolve the account's role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		password := loginPassword
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil {
				return err
			}
			password = strings.TrimRight(line, "\r\n")
		}

		user, err := a.session.Login(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if err := a.session.Logout(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user and resolved role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if err := a.restore(cmd); err != nil {
			return err
		}
		user, _ := a.session.User()
		fmt.Printf("%s\t%s\t%s\n", user.ID, user.Username, user.Role)
		return nil
	},
}

var shuttleCmd = &cobra.Command{
	Use:   "shuttle",
	Short: "Discover the shuttle assigned to this account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if err := a.restore(cmd); err != nil {
			return err
		}

		rec, err := a.session.ResolveAssignment(cmd.Context())
		if errors.Is(err, assignment.ErrNotAssigned) {
			fmt.Println("No shuttle assigned.")
			return nil
		}
		if err != nil {
			return err
		}
		printRecord(rec)
		return nil
	},
}

var trackDuration time.Duration

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Follow the assigned shuttle's live position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if err := a.restore(cmd); err != nil {
			return err
		}

		rec, err := a.session.ResolveAssignment(cmd.Context())
		if errors.Is(err, assignment.ErrNotAssigned) {
			fmt.Println("No shuttle assigned.")
			return nil
		}
		if err != nil {
			return err
		}

		user, _ := a.session.User()
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if trackDuration > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, trackDuration)
			defer tcancel()
		}

		stop := a.tracker.Start(ctx, rec.ShuttleID, user.ID, func(sample assignment.Telemetry) {
			a.session.ApplyTelemetry(sample)
			if sample.Location != nil {
				fmt.Printf("shuttle %s at %.6f,%.6f", rec.ShuttleID, sample.Location.Lat, sample.Location.Lng)
			} else {
				fmt.Printf("shuttle %s position unknown", rec.ShuttleID)
			}
			if sample.ETA != "" {
				fmt.Printf("  eta %s", sample.ETA)
			}
			fmt.Println()
		})
		defer stop()

		<-ctx.Done()
		return nil
	},
}

var passengersCmd = &cobra.Command{
	Use:   "passengers",
	Short: "List students riding this driver's shuttle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if err := a.restore(cmd); err != nil {
			return err
		}
		user, _ := a.session.User()

		shuttle, passengers, err := a.roster.Passengers(cmd.Context(), user.ID)
		if errors.Is(err, assignment.ErrNotAssigned) {
			fmt.Println("No shuttle assigned.")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("Shuttle %s: %d passenger(s)\n", shuttle.ShuttleID, len(passengers))
		for _, p := range passengers {
			fmt.Printf("  %s\t%s\t%s\n", p.ID, p.Name, p.Grade)
		}
		return nil
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List message contacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if err := a.restore(cmd); err != nil {
			return err
		}

		contacts, err := a.messages.Contacts(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range contacts {
			name := c.FullName
			if name == "" {
				name = c.Username
			}
			fmt.Printf("%s\t%s\t%s\n", c.UserID, name, c.Role)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <receiver-id> <message>",
	Short: "Send a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if err := a.restore(cmd); err != nil {
			return err
		}
		if err := a.messages.Send(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		fmt.Println("Sent.")
		return nil
	},
}

func printRecord(rec assignment.Record) {
	fmt.Printf("Shuttle %s\n", rec.ShuttleID)
	if rec.PlateNumber != "" {
		fmt.Printf("  plate      %s\n", rec.PlateNumber)
	}
	if rec.Capacity > 0 {
		fmt.Printf("  capacity   %d/%d\n", rec.Occupancy, rec.Capacity)
	}
	fmt.Printf("  status     %s\n", rec.Status)
	if rec.Driver != nil {
		fmt.Printf("  driver     %s", rec.Driver.FullName)
		if rec.Driver.ContactNumber != "" {
			fmt.Printf(" (%s)", rec.Driver.ContactNumber)
		}
		fmt.Println()
	}
	if rec.Location != nil {
		fmt.Printf("  location   %.6f,%.6f\n", rec.Location.Lat, rec.Location.Lng)
	}
}

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (prompted when omitted)")
	trackCmd.Flags().DurationVar(&trackDuration, "duration", 0, "stop tracking after this long (0 = until interrupted)")
}
