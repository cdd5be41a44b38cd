package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
)

// CreateUserCommand creates an identity together with its member profile.
type CreateUserCommand struct {
	Username     string
	Email        string
	Password     string
	Admin        bool
	DatabasePath string
}

func NewCreateUserCommand() *CreateUserCommand {
	return &CreateUserCommand{}
}

func (cmd *CreateUserCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)

	fs.StringVar(&cmd.Username, "username", "", "Login name, 3-64 characters (required)")
	fs.StringVar(&cmd.Email, "email", "", "Email address (required)")
	fs.StringVar(&cmd.Password, "password", "", "Password, at least AUTH_MIN_PASSWORD_LENGTH characters (required)")
	fs.BoolVar(&cmd.Admin, "admin", false, "Grant the administrator role")
	fs.StringVar(&cmd.DatabasePath, "db", "", "SQLite database path (defaults to DATABASE_PATH)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-user -username <name> -email <email> -password <password> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create a user and the member profile that lets them borrow books.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s create-user -username librarian -email desk@example.com -password '...' -admin\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case cmd.Username == "":
		return fmt.Errorf("required flag -username not provided")
	case cmd.Email == "":
		return fmt.Errorf("required flag -email not provided")
	case cmd.Password == "":
		return fmt.Errorf("required flag -password not provided")
	}
	return nil
}

func (cmd *CreateUserCommand) Run() error {
	cfg := loadConfig(cmd.DatabasePath)
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	role := entities.UserRoleMember
	if cmd.Admin {
		role = entities.UserRoleAdmin
	}

	service := auth.NewService(db.DB, cfg.Auth)
	user, member, err := service.CreateUser(context.Background(), cmd.Username, cmd.Email, cmd.Password, role)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created %s %q (user %d, member %d)\n", user.Role, user.Username, user.ID, member.ID)
	return nil
}
