package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"savequest/internal/config"
	"savequest/internal/database"
	"savequest/internal/identity"
	"savequest/internal/keychain"
	"savequest/internal/models"
	"savequest/internal/repository"
	"savequest/internal/service"
	"savequest/pkg/logging"
)

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := newApp(ctx)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.db.Close()

	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app wires the record store, identity provider, keychain and services
// together for the CLI commands.
type app struct {
	cfg        *config.Config
	db         *database.DB
	reconciler *service.SessionReconciler
	families   *service.FamilyService
	activities *service.ActivityService
	savings    *service.SavingsService
	store      keychain.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(ctx, cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	profileRepo := repository.NewUserProfileRepository(db)
	familyRepo := repository.NewFamilyRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	entryRepo := repository.NewSavingsEntryRepository(db)

	emailService, err := service.NewEmailService(ctx, cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName)
	if err != nil {
		slog.Warn("invite emails disabled", "error", err)
		emailService, _ = service.NewEmailService(ctx, cfg.SESRegion, "", "")
	}

	store := keychain.NewFileStore(cfg.KeychainPath)
	provider := buildProvider(cfg)

	reconciler := service.NewSessionReconciler(
		profileRepo,
		familyRepo,
		provider,
		store,
		identity.OptimisticChecker{},
		cfg.KeychainRetryDelay,
	)

	return &app{
		cfg:        cfg,
		db:         db,
		reconciler: reconciler,
		families:   service.NewFamilyService(familyRepo, profileRepo, emailService),
		activities: service.NewActivityService(activityRepo),
		savings:    service.NewSavingsService(entryRepo, activityRepo),
		store:      store,
	}, nil
}

// buildProvider returns the Sign in with Apple provider, or a stub that
// refuses sign-in when the Apple credentials are not configured. Restore and
// read commands still work without them.
func buildProvider(cfg *config.Config) identity.Provider {
	if cfg.AppleClientID == "" || cfg.ApplePrivateKeyPath == "" {
		return unconfiguredProvider{}
	}

	key, err := identity.LoadApplePrivateKey(cfg.ApplePrivateKeyPath)
	if err != nil {
		slog.Warn("failed to load apple private key, sign-in disabled", "error", err)
		return unconfiguredProvider{}
	}

	return identity.NewAppleProvider(
		cfg.AppleClientID,
		cfg.AppleTeamID,
		cfg.AppleKeyID,
		key,
		cfg.AppleRedirectURL,
		stdinPrompt,
	)
}

type unconfiguredProvider struct{}

func (unconfiguredProvider) SignIn(ctx context.Context) (*identity.Identity, error) {
	return nil, identity.NewAuthError(identity.AuthAuthorizationFailed,
		errors.New("sign in with apple is not configured (set APPLE_CLIENT_ID and APPLE_PRIVATE_KEY_PATH)"))
}

// stdinPrompt shows the authorization URL and reads the callback code from
// standard input.
func stdinPrompt(ctx context.Context, authURL string) (string, error) {
	fmt.Println("Open this URL in your browser and sign in:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Print("Paste the authorization code (empty to cancel): ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "restore":
		return a.cmdRestore(ctx)
	case "create-family":
		return a.cmdCreateFamily(ctx)
	case "join":
		return a.cmdJoin(ctx, args)
	case "signout":
		a.store.Delete()
		fmt.Println("Signed out. Records in the family store are untouched.")
		return nil
	case "roster":
		return a.cmdRoster(ctx)
	case "invite":
		return a.cmdInvite(ctx, args)
	case "activities":
		return a.cmdActivities(ctx, args)
	case "add-activity":
		return a.cmdAddActivity(ctx, args)
	case "log":
		return a.cmdLog(ctx, args)
	case "progress":
		return a.cmdProgress(ctx, args)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func (a *app) cmdRestore(ctx context.Context) error {
	session, err := a.reconciler.Restore(ctx)
	if err != nil {
		return err
	}
	printSession(session)
	return nil
}

func (a *app) cmdCreateFamily(ctx context.Context) error {
	session, err := a.reconciler.Resolve(ctx, models.FlowCreateFamily, "")
	if err != nil {
		var rejection *service.RejectionError
		if errors.As(err, &rejection) {
			fmt.Println("Rejected:", rejection.Reason)
			return nil
		}
		return err
	}
	printSession(session)
	fmt.Printf("Family invite code: %s\n", session.Family.InviteCode)
	return nil
}

func (a *app) cmdJoin(ctx context.Context, args []string) error {
	joinCmd := flag.NewFlagSet("join", flag.ExitOnError)
	code := joinCmd.String("code", "", "Family invite code (required)")
	joinCmd.Parse(args)

	if *code == "" {
		joinCmd.PrintDefaults()
		return errors.New("-code flag is required")
	}

	session, err := a.reconciler.Resolve(ctx, models.FlowJoinFamily, strings.ToUpper(strings.TrimSpace(*code)))
	if err != nil {
		var rejection *service.RejectionError
		if errors.As(err, &rejection) {
			fmt.Println("Rejected:", rejection.Reason)
			return nil
		}
		return err
	}
	printSession(session)
	return nil
}

func (a *app) cmdRoster(ctx context.Context) error {
	session, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	roster, err := a.families.GetRoster(ctx, session.Family.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Family %s (code %s):\n", session.Family.ID, session.Family.InviteCode)
	for _, profile := range roster {
		role := "member"
		if profile.ID == session.Family.CreatorID {
			role = "creator"
		}
		fmt.Printf("  %-10s %s\n", role, profile.Name)
	}
	return nil
}

func (a *app) cmdInvite(ctx context.Context, args []string) error {
	inviteCmd := flag.NewFlagSet("invite", flag.ExitOnError)
	email := inviteCmd.String("email", "", "Email address to invite (required)")
	inviteCmd.Parse(args)

	if *email == "" {
		inviteCmd.PrintDefaults()
		return errors.New("-email flag is required")
	}

	session, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	if err := a.families.InviteMember(ctx, session.Family.ID, session.Profile.Name, *email); err != nil {
		return err
	}
	fmt.Printf("Invite sent to %s\n", *email)
	return nil
}

func (a *app) cmdActivities(ctx context.Context, args []string) error {
	listCmd := flag.NewFlagSet("activities", flag.ExitOnError)
	mine := listCmd.Bool("mine", false, "Only activities assigned to you")
	listCmd.Parse(args)

	session, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	var activities []models.Activity
	if *mine {
		activities, err = a.activities.GetAssignedActivities(ctx, session.Profile.ID)
	} else {
		activities, err = a.activities.GetFamilyActivities(ctx, session.Family.ID)
	}
	if err != nil {
		return err
	}
	if len(activities) == 0 {
		fmt.Println("No activities yet.")
		return nil
	}

	for _, activity := range activities {
		progress, err := a.savings.ActivityProgress(ctx, &activity)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %-20s %6.2f / %6.2f (%3.0f%%)  ends %s\n",
			activity.ID, activity.Title,
			progress.TotalSaved, activity.MoneyGoal, progress.Fraction*100,
			activity.EndDate.Format("2006-01-02"))
	}
	return nil
}

func (a *app) cmdAddActivity(ctx context.Context, args []string) error {
	addCmd := flag.NewFlagSet("add-activity", flag.ExitOnError)
	title := addCmd.String("title", "", "Activity title (required)")
	goal := addCmd.Float64("goal", 0, "Money goal, must be positive (required)")
	end := addCmd.String("end", "", "End date YYYY-MM-DD (required)")
	assign := addCmd.String("assign", "", "Comma-separated profile IDs (defaults to yourself)")
	addCmd.Parse(args)

	session, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	endDate, err := time.Parse("2006-01-02", *end)
	if err != nil {
		return fmt.Errorf("invalid -end date: %w", err)
	}

	assignedTo := []string{session.Profile.ID}
	if *assign != "" {
		assignedTo = strings.Split(*assign, ",")
	}

	activity, err := a.activities.CreateActivity(ctx, session.Family.ID, *title, *goal, endDate, assignedTo)
	if err != nil {
		return err
	}
	fmt.Printf("Created activity %s: %s\n", activity.ID, activity.Title)
	return nil
}

func (a *app) cmdLog(ctx context.Context, args []string) error {
	logCmd := flag.NewFlagSet("log", flag.ExitOnError)
	activityID := logCmd.String("activity", "", "Activity ID (required)")
	amount := logCmd.Float64("amount", 0, "Amount saved, must be positive (required)")
	notes := logCmd.String("notes", "", "Optional note")
	logCmd.Parse(args)

	session, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	entry, err := a.savings.LogEntry(ctx, *activityID, session.Profile.ID, *amount, *notes, time.Time{})
	if err != nil {
		return err
	}
	fmt.Printf("Logged %.2f against activity %s\n", entry.AmountSaved, entry.ActivityID)
	return nil
}

func (a *app) cmdProgress(ctx context.Context, args []string) error {
	progressCmd := flag.NewFlagSet("progress", flag.ExitOnError)
	activityID := progressCmd.String("activity", "", "Activity ID (required)")
	progressCmd.Parse(args)

	if _, err := a.requireSession(ctx); err != nil {
		return err
	}

	activity, err := a.activities.GetActivity(ctx, *activityID)
	if err != nil {
		return err
	}

	progress, err := a.savings.ActivityProgress(ctx, activity)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %.2f of %.2f saved (%.0f%%)\n",
		activity.Title, progress.TotalSaved, activity.MoneyGoal, progress.Fraction*100)
	return nil
}

// requireSession restores the stored session and fails the command when the
// device is not signed in.
func (a *app) requireSession(ctx context.Context) (models.Session, error) {
	session, err := a.reconciler.Restore(ctx)
	if err != nil {
		return session, err
	}
	if !session.Authenticated() {
		return session, errors.New("not signed in: run 'savequest create-family' or 'savequest join -code XXX-000'")
	}
	return session, nil
}

func printSession(session models.Session) {
	switch session.State {
	case models.StateAuthenticated:
		fmt.Printf("Signed in as %s (%s of family %s)\n",
			session.Profile.Name, session.Role, session.Family.ID)
	case models.StateUnauthenticated:
		fmt.Println("Not signed in.")
	default:
		fmt.Printf("Session state: %s\n", session.State)
	}
}

func printUsage() {
	fmt.Println("Savequest Family Savings")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  savequest restore                       Restore the previous session")
	fmt.Println("  savequest create-family                 Sign in and found a new family")
	fmt.Println("  savequest join -code XXX-000            Sign in and join a family by invite code")
	fmt.Println("  savequest signout                       Forget the stored identity on this device")
	fmt.Println("  savequest roster                        List the family members")
	fmt.Println("  savequest invite -email a@b.com         Email the invite code")
	fmt.Println("  savequest activities [-mine]            List family activities with progress")
	fmt.Println("  savequest add-activity -title T -goal N -end YYYY-MM-DD [-assign id,id]")
	fmt.Println("  savequest log -activity ID -amount N [-notes text]")
	fmt.Println("  savequest progress -activity ID         Show savings progress for one activity")
}
