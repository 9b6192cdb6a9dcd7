// Command snipctl is a terminal client for the snippet platform. It logs in
// against the configured identity provider (or uses ACCESS_TOKEN directly),
// then drives the snippet, rule, test and execution services.
//
// Usage:
//
//	snipctl [-fake] <command> [arguments]
//
// Commands: login-status, list, get, create, update, delete, share, run,
// format, download, rules, lint-rules, tests, test, filetypes, friends.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ingsis25/snippet-searcher/internal/auth"
	"github.com/ingsis25/snippet-searcher/internal/client"
	"github.com/ingsis25/snippet-searcher/internal/config"
	"github.com/ingsis25/snippet-searcher/internal/debounce"
	"github.com/ingsis25/snippet-searcher/internal/model"
	"github.com/ingsis25/snippet-searcher/internal/ops"
)

func main() {
	fake := flag.Bool("fake", false, "use the in-memory backend instead of the real services")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()

	if args[0] == "login-status" {
		if err := cmdLoginStatus(ctx, *fake, logger); err != nil {
			fmt.Fprintln(os.Stderr, "snipctl:", err)
			os.Exit(1)
		}
		return
	}

	operations, err := buildOperations(ctx, *fake, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "snipctl:", err)
		os.Exit(1)
	}

	if err := dispatch(ctx, operations, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "snipctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: snipctl [-fake] [-v] <command> [arguments]

commands:
  login-status                              log in and print the session state
  list [-page N] [-size N] [-name filter]   list your snippets
  get <id>                                  show one snippet
  create -name N -language L [-ext E] [-version V] [-file F]
                                            create a snippet (content from -file or stdin)
  update <id> [-file F]                     replace snippet content
  delete <id>                               delete a snippet
  share <id> <email> [-role Editor|Viewer]  grant access
  run <id> [input ...]                      execute and print output
  format <id>                               print the formatted source
  download <id> [-dir D] [-meta]            save the snippet to a file
  rules [-toggle id]                        show or toggle formatting rules
  lint-rules [-toggle id]                   show or toggle linting rules
  tests <snippetId>                         list test cases
  test <snippetId>                          run all test cases
  filetypes                                 list supported languages
  friends [-watch] [search]                 search users to share with`)
}

// buildOperations picks the backend: the in-memory fake, or a live session
// authenticated with whatever credentials the environment offers.
// cmdLoginStatus attempts a login with the configured credentials and
// reports the resulting session state and identity.
func cmdLoginStatus(ctx context.Context, fake bool, logger *slog.Logger) error {
	if fake {
		fmt.Println("state:    authenticated (in-memory backend, no provider)")
		return nil
	}

	cfg := config.Load(logger)
	snippets := client.New(cfg.Services.SnippetsURL, logger)
	runner := client.New(cfg.Services.RunnerURL, logger)
	session := auth.NewSession(cfg.Auth, snippets, runner, logger)

	if err := loginWith(ctx, session, cfg.Auth); err != nil {
		fmt.Println("state:   ", session.State())
		return err
	}

	identity := session.Identity()
	fmt.Println("state:   ", session.State())
	fmt.Println("subject: ", identity.Sub)
	fmt.Println("email:   ", identity.Email)
	return nil
}

// loginWith picks the grant for the credentials at hand: a static token
// wins, then the password grant, then client credentials.
func loginWith(ctx context.Context, session *auth.Session, cfg config.AuthConfig) error {
	switch {
	case cfg.StaticToken != "":
		return session.LoginWithStaticToken(cfg.StaticToken)
	case cfg.Password != "":
		return session.LoginWithPassword(ctx)
	case cfg.ClientSecret != "":
		return session.LoginWithClientCredentials(ctx)
	default:
		return fmt.Errorf("no credentials: set ACCESS_TOKEN, AUTH0_PASSWORD or AUTH0_CLIENT_SECRET")
	}
}

func buildOperations(ctx context.Context, fake bool, logger *slog.Logger) (ops.SnippetOperations, error) {
	if fake {
		return ops.NewFake(ops.Identity{Sub: "auth0|local", Email: "test@gmail.com"}), nil
	}

	cfg := config.Load(logger)
	snippets := client.New(cfg.Services.SnippetsURL, logger)
	runner := client.New(cfg.Services.RunnerURL, logger)
	session := auth.NewSession(cfg.Auth, snippets, runner, logger)
	if err := loginWith(ctx, session, cfg.Auth); err != nil {
		return nil, err
	}

	operations, ok := session.Operations()
	if !ok {
		return nil, fmt.Errorf("login succeeded but no operations facade is available")
	}
	return operations, nil
}

func dispatch(ctx context.Context, operations ops.SnippetOperations, command string, args []string) error {
	switch command {
	case "list":
		return cmdList(ctx, operations, args)
	case "get":
		return cmdGet(ctx, operations, args)
	case "create":
		return cmdCreate(ctx, operations, args)
	case "update":
		return cmdUpdate(ctx, operations, args)
	case "delete":
		return cmdDelete(ctx, operations, args)
	case "share":
		return cmdShare(ctx, operations, args)
	case "run":
		return cmdRun(ctx, operations, args)
	case "format":
		return cmdFormat(ctx, operations, args)
	case "download":
		return cmdDownload(ctx, operations, args)
	case "rules":
		return cmdRules(ctx, operations, args, false)
	case "lint-rules":
		return cmdRules(ctx, operations, args, true)
	case "tests":
		return cmdTests(ctx, operations, args)
	case "test":
		return cmdTest(ctx, operations, args)
	case "filetypes":
		return cmdFileTypes(ctx, operations)
	case "friends":
		return cmdFriends(ctx, operations, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func cmdList(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	page := fs.Int("page", 0, "page number")
	size := fs.Int("size", 10, "page size")
	name := fs.String("name", "", "filter by name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := operations.ListSnippetDescriptors(ctx, *page, *size, *name)
	if err != nil {
		return err
	}

	fmt.Printf("page %d (%d total)\n", result.Page, result.Count)
	for _, s := range result.Snippets {
		fmt.Printf("%-22s  %-20s  %-12s %-6s  %-13s %s\n",
			s.ID, s.Name, s.Language, s.Version, s.Compliance, s.UserRole)
	}
	return nil
}

func cmdGet(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("get: snippet id required")
	}
	snippet, err := operations.GetSnippetByID(ctx, args[0])
	if err != nil {
		return err
	}
	if snippet == nil {
		return fmt.Errorf("get: snippet not found")
	}
	printSnippet(snippet)
	return nil
}

func printSnippet(s *model.Snippet) {
	fmt.Printf("id:         %s\n", s.ID)
	fmt.Printf("name:       %s\n", s.Name)
	fmt.Printf("language:   %s %s (.%s)\n", s.Language, s.Version, s.Extension)
	fmt.Printf("owner:      %s\n", s.Owner)
	fmt.Printf("compliance: %s\n", s.Compliance)
	if s.UserRole != "" {
		fmt.Printf("role:       %s\n", s.UserRole)
	}
	for _, w := range s.LintWarnings {
		fmt.Printf("warning:    %s\n", w)
	}
	for _, e := range s.Errors {
		fmt.Printf("error:      %s\n", e)
	}
	if s.Content != "" {
		fmt.Println("---")
		fmt.Println(s.Content)
	}
}

// readContent loads snippet source from a file, or stdin when path is empty.
func readContent(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func cmdCreate(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "snippet name")
	language := fs.String("language", "printscript", "language")
	ext := fs.String("ext", "ps", "file extension")
	version := fs.String("version", "1.1", "language version")
	file := fs.String("file", "", "read content from file (default: stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	content, err := readContent(*file)
	if err != nil {
		return err
	}

	snippet, err := operations.CreateSnippet(ctx, model.CreateSnippet{
		Name:      *name,
		Content:   content,
		Language:  *language,
		Extension: *ext,
		Version:   *version,
	})
	if err != nil {
		return err
	}
	fmt.Println("created", snippet.ID)
	for _, e := range snippet.Errors {
		fmt.Println("error:", e)
	}
	return nil
}

func cmdUpdate(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("update: snippet id required")
	}
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	file := fs.String("file", "", "read content from file (default: stdin)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	content, err := readContent(*file)
	if err != nil {
		return err
	}
	snippet, err := operations.UpdateSnippetByID(ctx, args[0], model.UpdateSnippet{Content: content})
	if err != nil {
		return err
	}
	fmt.Println("updated", snippet.ID)
	return nil
}

func cmdDelete(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("delete: snippet id required")
	}
	confirmation, err := operations.DeleteSnippet(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(confirmation)
	return nil
}

func cmdShare(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("share: snippet id and email required")
	}
	fs := flag.NewFlagSet("share", flag.ContinueOnError)
	role := fs.String("role", string(model.RoleEditor), "granted role")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	snippet, err := operations.ShareSnippet(ctx, args[0], args[1], model.Role(*role))
	if err != nil {
		return err
	}
	fmt.Printf("shared %s with %s as %s\n", snippet.Name, args[1], *role)
	return nil
}

func cmdRun(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("run: snippet id required")
	}
	outputs, err := operations.RunSnippet(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	for _, line := range outputs {
		fmt.Println(line)
	}
	return nil
}

func cmdFormat(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("format: snippet id required")
	}
	formatted, err := operations.FormatSnippet(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Print(formatted)
	return nil
}

func cmdDownload(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("download: snippet id required")
	}
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	dir := fs.String("dir", ".", "target directory")
	meta := fs.Bool("meta", false, "prepend a metadata header")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	path, err := operations.DownloadSnippet(ctx, args[0], *meta, *dir)
	if err != nil {
		return err
	}
	fmt.Println("saved", path)
	return nil
}

func cmdRules(ctx context.Context, operations ops.SnippetOperations, args []string, lint bool) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	toggle := fs.String("toggle", "", "flip the rule with this id and save")
	if err := fs.Parse(args); err != nil {
		return err
	}

	get, modify := operations.GetFormatRules, operations.ModifyFormatRule
	if lint {
		get, modify = operations.GetLintingRules, operations.ModifyLintingRule
	}

	rules, err := get(ctx)
	if err != nil {
		return err
	}

	if *toggle != "" {
		found := false
		for i := range rules {
			if rules[i].ID == *toggle {
				rules[i].Enabled = !rules[i].Enabled
				found = true
			}
		}
		if !found {
			return fmt.Errorf("rules: no rule with id %q", *toggle)
		}
		if rules, err = modify(ctx, rules); err != nil {
			return err
		}
	}

	for _, r := range rules {
		state := " "
		if r.Enabled {
			state = "x"
		}
		fmt.Printf("[%s] %-4s %s", state, r.ID, r.Name)
		if r.Value != nil {
			fmt.Printf(" = %v", r.Value)
		}
		fmt.Println()
	}
	return nil
}

func cmdTests(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("tests: snippet id required")
	}
	cases, err := operations.GetTestCases(ctx, args[0])
	if err != nil {
		return err
	}
	for _, tc := range cases {
		fmt.Printf("%-22s  %s (%d inputs, %d expected lines)\n",
			tc.ID, tc.Name, len(tc.Input), len(tc.Output))
	}
	return nil
}

func cmdTest(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("test: snippet id required")
	}
	cases, err := operations.GetTestCases(ctx, args[0])
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		fmt.Println("no test cases")
		return nil
	}

	failed := 0
	for _, tc := range cases {
		verdict, err := operations.TestSnippet(ctx, tc)
		if err != nil {
			return err
		}
		if verdict != model.TestSuccess {
			failed++
		}
		fmt.Printf("%-7s %s\n", verdict, tc.Name)
	}
	if failed > 0 {
		return fmt.Errorf("test: %d of %d test cases failed", failed, len(cases))
	}
	return nil
}

func cmdFileTypes(ctx context.Context, operations ops.SnippetOperations) error {
	fileTypes, err := operations.GetFileTypes(ctx)
	if err != nil {
		return err
	}
	for _, ft := range fileTypes {
		fmt.Printf("%-15s %-6s .%s\n", ft.Language, ft.Version, ft.Extension)
	}
	return nil
}

// searchDebounce matches the pause a share dialog waits for before firing a
// directory query.
const searchDebounce = 400 * time.Millisecond

func cmdFriends(ctx context.Context, operations ops.SnippetOperations, args []string) error {
	fs := flag.NewFlagSet("friends", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "read queries from stdin, debounced")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*watch {
		search := ""
		if fs.NArg() > 0 {
			search = fs.Arg(0)
		}
		return printFriends(ctx, operations, search)
	}

	// Each line typed is a new query; queries within the debounce window
	// replace each other so only the final one reaches the directory.
	debouncer := debounce.New(searchDebounce)
	defer debouncer.Stop()

	fmt.Println("type a search term per line (ctrl-d to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		debouncer.Trigger(func() {
			if err := printFriends(ctx, operations, query); err != nil {
				fmt.Fprintln(os.Stderr, "snipctl:", err)
			}
		})
	}
	return scanner.Err()
}

func printFriends(ctx context.Context, operations ops.SnippetOperations, search string) error {
	result, err := operations.GetUserFriends(ctx, search)
	if err != nil {
		return err
	}
	if len(result.Users) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, u := range result.Users {
		fmt.Printf("%-22s  %s\n", u.ID, u.Name)
	}
	return nil
}
