// ABOUTME: Operator CLI for vellum user and token management
// ABOUTME: Talks to the database directly, bypassing the HTTP front door

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/vellum/internal/config"
	"github.com/2389/vellum/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "list-users":
		err = runListUsers(ctx)
	case "create-user":
		err = runCreateUser(ctx, os.Args[2:])
	case "promote":
		err = runSetAdmin(ctx, os.Args[2:], true)
	case "demote":
		err = runSetAdmin(ctx, os.Args[2:], false)
	case "deactivate":
		err = runSetActive(ctx, os.Args[2:], false)
	case "activate":
		err = runSetActive(ctx, os.Args[2:], true)
	case "list-tokens":
		err = runListTokens(ctx, os.Args[2:])
	case "revoke-token":
		err = runRevokeToken(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: vellum-admin <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list-users                          List all user accounts")
	fmt.Println("  create-user <email> <username>      Create a user (password read from VELLUM_PASSWORD)")
	fmt.Println("  promote <username>                  Grant the admin flag")
	fmt.Println("  demote <username>                   Remove the admin flag")
	fmt.Println("  deactivate <username>               Deactivate an account and its credentials")
	fmt.Println("  activate <username>                 Reactivate an account")
	fmt.Println("  list-tokens <username>              List a user's personal tokens")
	fmt.Println("  revoke-token <token-id>             Revoke a personal token")
}

func openStore() (*store.SQLiteStore, error) {
	configPath := os.Getenv("VELLUM_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return store.NewSQLiteStore(cfg.Database.Path)
}

func defaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "vellum.yaml"
		}
		configDir = homeDir + "/.config"
	}
	return configDir + "/vellum/vellum.yaml"
}

func runListUsers(ctx context.Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.ListUsers(ctx, store.UserFilter{})
	if err != nil {
		return err
	}

	if len(users) == 0 {
		fmt.Println("(no users)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tACTIVE\tADMIN\tCREATED")
	fmt.Fprintln(w, "--\t--------\t-----\t------\t-----\t-------")
	for _, u := range users {
		id := u.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\n",
			id, u.Username, u.Email, u.Active, u.Admin, u.CreatedAt.Format("Jan 02 2006"))
	}
	return w.Flush()
}

func runCreateUser(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: vellum-admin create-user <email> <username>")
	}
	password := os.Getenv("VELLUM_PASSWORD")
	if len(password) < 8 {
		return fmt.Errorf("set VELLUM_PASSWORD to a password of at least 8 characters")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		Email:        strings.ToLower(args[0]),
		Username:     args[1],
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := st.CreateUser(ctx, user); err != nil {
		return err
	}

	color.Green("✓ Created user %s (%s)", user.Username, user.ID)
	return nil
}

func runSetAdmin(ctx context.Context, args []string, admin bool) error {
	user, st, err := lookupUser(ctx, args)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetUserAdmin(ctx, user.ID, admin); err != nil {
		return err
	}
	if admin {
		color.Green("✓ %s is now an admin", user.Username)
	} else {
		color.Green("✓ %s is no longer an admin", user.Username)
	}
	return nil
}

func runSetActive(ctx context.Context, args []string, active bool) error {
	user, st, err := lookupUser(ctx, args)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetUserActive(ctx, user.ID, active); err != nil {
		return err
	}
	if active {
		color.Green("✓ %s reactivated", user.Username)
	} else {
		color.Yellow("✓ %s deactivated; their sessions and tokens stop resolving now", user.Username)
	}
	return nil
}

func runListTokens(ctx context.Context, args []string) error {
	user, st, err := lookupUser(ctx, args)
	if err != nil {
		return err
	}
	defer st.Close()

	pats, err := st.ListPATsByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(pats) == 0 {
		fmt.Println("(no tokens)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tACTIVE\tEXPIRES\tLAST USED")
	fmt.Fprintln(w, "--\t-----\t------\t-------\t---------")
	for _, p := range pats {
		expires := "never"
		if p.ExpiresAt != nil {
			expires = p.ExpiresAt.Format("Jan 02 2006")
		}
		lastUsed := "never"
		if p.LastUsed != nil {
			lastUsed = p.LastUsed.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", p.ID, p.Label, p.Active, expires, lastUsed)
	}
	return w.Flush()
}

func runRevokeToken(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: vellum-admin revoke-token <token-id>")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetPATActive(ctx, args[0], false); err != nil {
		return err
	}
	color.Green("✓ Token %s revoked", args[0])
	return nil
}

func lookupUser(ctx context.Context, args []string) (*store.User, *store.SQLiteStore, error) {
	if len(args) < 1 {
		return nil, nil, fmt.Errorf("username argument required")
	}

	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	user, err := st.GetUserByUsername(ctx, args[0])
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("looking up %q: %w", args[0], err)
	}
	return user, st, nil
}
