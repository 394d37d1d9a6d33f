package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/egoavara/modmgr/internal/autoupdate"
	"github.com/egoavara/modmgr/internal/i18n"
	"github.com/egoavara/modmgr/internal/modmgr"
	"github.com/egoavara/modmgr/internal/search"
	"github.com/egoavara/modmgr/internal/tui"
)

var modCmd = &cobra.Command{
	Use:   "mod",
	Short: "Manage mods",
	Long: `Manage mods installed from registered buckets.

Commands:
  install    Install a mod
  uninstall  Uninstall an installed mod
  update     Update installed mod(s)
  reset      Reinstall a mod from its bucket
  list       List installed mods
  search     Search for mods
  link       Point a mod at a local working directory
  unlink     Drop the local working directory of a mod
  outdated   List mods with a newer version in their bucket`,
}

var modInstallCmd = &cobra.Command{
	Use:   "install <mod>[@<bucket>]...",
	Short: "Install mods from buckets",
	Long: `Install one or more mods. Without a bucket, every bucket is tried
in registration order. Without arguments, opens the interactive finder.

Example:
  modmgr mod install my-mod
  modmgr mod install my-mod@org_mods
  modmgr mod install -p my-mod   # choose the bucket when several carry it`,
	RunE: runModInstall,
}

var modUninstallCmd = &cobra.Command{
	Use:     "uninstall <mod>...",
	Aliases: []string{"remove", "rm"},
	Short:   "Uninstall installed mods",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runModUninstall,
}

var modUpdateCmd = &cobra.Command{
	Use:   "update [mod]",
	Short: "Update installed mod(s)",
	Long: `Update all installed mods or a specific mod.

By default, buckets are pulled and only mods with a newer version are
updated after confirmation. Use --force to reinstall regardless of version.

Example:
  modmgr mod update                # Pull buckets, confirm and update
  modmgr mod update --yes          # Same without the prompt
  modmgr mod update --force        # Force reinstall all mods
  modmgr mod update my-mod         # Update specific`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModUpdate,
}

var modResetCmd = &cobra.Command{
	Use:   "reset <mod>",
	Short: "Reinstall a mod from its bucket",
	Args:  cobra.ExactArgs(1),
	RunE:  runModReset,
}

var modListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed mods",
	RunE:  runModList,
}

var modSearchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search for mods across all buckets",
	Long: `Search for mods using fuzzy matching across all registered buckets.

Without arguments, opens an interactive fuzzy finder (TUI mode).
With a keyword, performs a text-based search. --substring switches
the text search from fuzzy ranking to a plain case-insensitive match.

Example:
  modmgr mod search              # Interactive TUI mode
  modmgr mod search theme        # Text search mode
  modmgr mod search -s dark      # Substring match`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModSearch,
}

var modLinkCmd = &cobra.Command{
	Use:   "link <mod> <path>",
	Short: "Load a mod from a local working directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runModLink,
}

var modUnlinkCmd = &cobra.Command{
	Use:   "unlink <mod>",
	Short: "Drop the local working directory of a mod",
	Args:  cobra.ExactArgs(1),
	RunE:  runModUnlink,
}

var modOutdatedCmd = &cobra.Command{
	Use:   "outdated",
	Short: "List mods with a newer version in their bucket",
	RunE:  runModOutdated,
}

var (
	modInstallPick  bool
	modUpdateForce  bool
	modUpdateYes    bool
	modOutdatedPull bool
	modSearchSubstr bool
)

func init() {
	modInstallCmd.Flags().BoolVarP(&modInstallPick, "pick", "p", false, "choose the bucket when several carry the mod")
	modUpdateCmd.Flags().BoolVarP(&modUpdateForce, "force", "f", false, "force reinstall regardless of version")
	modUpdateCmd.Flags().BoolVarP(&modUpdateYes, "yes", "y", false, "update without asking")
	modOutdatedCmd.Flags().BoolVar(&modOutdatedPull, "pull", false, "pull buckets before checking")
	modSearchCmd.Flags().BoolVarP(&modSearchSubstr, "substring", "s", false, "match the keyword as a plain substring")

	modCmd.AddCommand(modInstallCmd)
	modCmd.AddCommand(modUninstallCmd)
	modCmd.AddCommand(modUpdateCmd)
	modCmd.AddCommand(modResetCmd)
	modCmd.AddCommand(modListCmd)
	modCmd.AddCommand(modSearchCmd)
	modCmd.AddCommand(modLinkCmd)
	modCmd.AddCommand(modUnlinkCmd)
	modCmd.AddCommand(modOutdatedCmd)
}

// parseModIdentifier splits "name@bucket". The bucket part is optional.
func parseModIdentifier(id string) (name, bucket string, err error) {
	name, bucket, found := strings.Cut(id, "@")
	if name == "" || (found && bucket == "") {
		return "", "", fmt.Errorf("%s", i18n.T("InvalidModIdentifier", map[string]any{"ID": id}))
	}
	return name, bucket, nil
}

func runModInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return runFinder(cmd, a)
	}

	var failed []error
	for _, id := range args {
		name, bucket, err := parseModIdentifier(id)
		if err != nil {
			return err
		}

		if bucket == "" && modInstallPick {
			if bucket, err = pickBucket(a, name); err != nil {
				return err
			}
		}

		p, err := a.reg.InstallPkg(cmd.Context(), name, bucket)
		if err != nil {
			if errors.Is(err, modmgr.ErrAlreadyExists) {
				fmt.Println(i18n.T("AlreadyInstalled", map[string]any{"Name": name}))
				continue
			}
			fmt.Fprintln(os.Stderr, i18n.T("InstallFailed", map[string]any{"Name": id, "Error": gitError(err).Error()}))
			failed = append(failed, err)
			continue
		}
		fmt.Println(i18n.T("InstallSuccess", map[string]any{"Name": p.Name, "Bucket": p.Origin.Bucket, "Version": p.Version}))
	}
	return errors.Join(failed...)
}

// pickBucket asks which bucket to install name from. A single candidate is
// returned without asking.
func pickBucket(a *app, name string) (string, error) {
	var candidates []search.Entry
	entries := a.reg.SearchEntries()
	for _, b := range a.reg.Buckets() {
		for _, e := range entries[b.Name] {
			if e.Name == name {
				candidates = append(candidates, e)
			}
		}
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: %s", modmgr.ErrPackageNotFound, name)
	case 1:
		return candidates[0].Bucket, nil
	}

	e, ok, err := tui.RunBucketPicker(name, candidates)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s", i18n.T("SearchCancelled", nil))
	}
	return e.Bucket, nil
}

func runModUninstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	var failed []error
	for _, name := range args {
		if err := a.reg.UninstallPkg(cmd.Context(), name); err != nil {
			if errors.Is(err, modmgr.ErrNotInstalled) {
				fmt.Println(i18n.T("NotInstalled", map[string]any{"Name": name}))
				continue
			}
			fmt.Fprintln(os.Stderr, i18n.T("UninstallFailed", map[string]any{"Name": name, "Error": err.Error()}))
			failed = append(failed, err)
			continue
		}
		fmt.Println(i18n.T("RemoveSuccess", map[string]any{"Name": name}))
	}
	return errors.Join(failed...)
}

func runModUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) == 1 {
		updated, err := a.reg.UpdatePkg(ctx, args[0], modUpdateForce)
		if err != nil {
			return gitError(err)
		}
		if !updated {
			fmt.Println(i18n.T("NoChanges", nil))
			return nil
		}
		fmt.Println(i18n.T("UpdateSuccess", map[string]any{"Target": args[0]}))
		return nil
	}

	if modUpdateForce {
		var failed []error
		for _, r := range a.reg.UpdateAll(ctx, true) {
			if r.Err != nil {
				fmt.Printf("  %s: %v\n", r.Name, r.Err)
				failed = append(failed, r.Err)
				continue
			}
			fmt.Printf("  %s: done\n", r.Name)
		}
		return errors.Join(failed...)
	}

	fmt.Println(i18n.T("update.checking", nil))
	result := autoupdate.NewChecker(a.reg).Check(ctx, true)
	autoupdate.ShowUpdateSummary(os.Stdout, result)
	if !result.HasAnyUpdate() {
		return nil
	}

	if !modUpdateYes && !autoupdate.PromptUpdate(os.Stdin, os.Stdout, result) {
		fmt.Println(i18n.T("update.skipped", nil))
		return nil
	}

	if errList := autoupdate.NewUpdater(a.reg, os.Stdout).Apply(ctx, result); len(errList) > 0 {
		return errors.Join(errList...)
	}
	return nil
}

func runModReset(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	p, err := a.reg.ResetPkg(cmd.Context(), args[0])
	if err != nil {
		return gitError(err)
	}
	fmt.Println(i18n.T("ResetSuccess", map[string]any{"Name": p.Name, "Version": p.Version}))
	return nil
}

func runModList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	printMods(a.reg)
	return nil
}

func printMods(reg *modmgr.Registry) {
	printHeader(i18n.T("ListModsHeader", nil))

	pkgs := reg.Packages()
	if len(pkgs) == 0 {
		fmt.Println(i18n.T("NoModsInstalled", nil))
		return
	}

	for _, p := range pkgs {
		legacy := ""
		if p.IsLegacy() {
			legacy = " [v1]"
		}
		fmt.Printf("  %s (v%s) %s%s\n", p.Name, p.Version, p.Type, legacy)
		if display := reg.GetModName(p.Name); display != p.Name {
			fmt.Printf("    Name: %s\n", display)
		}
		if p.Origin.Bucket != "" {
			fmt.Printf("    Bucket: %s\n", p.Origin.Bucket)
		}
		if p.SourcePath != "" {
			fmt.Printf("    Linked: %s\n", p.SourcePath)
		}
		if p.Description != "" {
			fmt.Printf("    %s\n", p.Description)
		}
	}
}

func runModSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return runFinder(cmd, a)
	}

	var results []search.Result
	if modSearchSubstr {
		results = search.SimpleSearch(a.reg.SearchEntries(), args[0])
	} else {
		results = a.reg.Search(args[0])
	}
	if len(results) == 0 {
		fmt.Println(i18n.T("NoResults", map[string]any{"Keyword": args[0]}))
		return nil
	}

	fmt.Println(i18n.T("SearchResults", map[string]any{"Keyword": args[0], "Count": len(results)}, len(results)))
	fmt.Println(strings.Repeat("-", 40))
	for _, r := range results {
		e := r.Entry
		status := ""
		if _, err := a.reg.Package(e.Name); err == nil {
			status = " [installed]"
		}
		switch {
		case e.Remote != "":
			fmt.Printf("  %s@%s -> %s%s\n", e.Name, e.Bucket, e.Remote, status)
		case e.Version != "":
			fmt.Printf("  %s@%s (v%s)%s\n", e.Name, e.Bucket, e.Version, status)
		default:
			fmt.Printf("  %s@%s%s\n", e.Name, e.Bucket, status)
		}
		if e.Description != "" {
			fmt.Printf("    %s\n", e.Description)
		}
	}
	return nil
}

// runFinder opens the interactive finder and applies the confirmed changes.
func runFinder(cmd *cobra.Command, a *app) error {
	installed := func(name string) bool {
		_, err := a.reg.Package(name)
		return err == nil
	}

	result, err := tui.RunPackageFinder(a.reg.SearchEntries(), installed)
	if err != nil {
		return err
	}
	if result.Cancelled {
		fmt.Println(i18n.T("SearchCancelled", nil))
		return nil
	}
	if len(result.ToInstall) == 0 && len(result.ToUninstall) == 0 {
		fmt.Println(i18n.T("NoChanges", nil))
		return nil
	}

	var failed []error
	if len(result.ToUninstall) > 0 {
		fmt.Println(i18n.T("UninstallingMods", map[string]any{"Count": len(result.ToUninstall)}, len(result.ToUninstall)))
		for _, item := range result.ToUninstall {
			if err := a.reg.UninstallPkg(cmd.Context(), item.Entry.Name); err != nil {
				fmt.Fprintln(os.Stderr, i18n.T("UninstallFailed", map[string]any{"Name": item.ID(), "Error": err.Error()}))
				failed = append(failed, err)
				continue
			}
			fmt.Println(i18n.T("RemoveSuccess", map[string]any{"Name": item.Entry.Name}))
		}
	}
	if len(result.ToInstall) > 0 {
		fmt.Println(i18n.T("InstallingMods", map[string]any{"Count": len(result.ToInstall)}, len(result.ToInstall)))
		for _, item := range result.ToInstall {
			p, err := a.reg.InstallPkg(cmd.Context(), item.Entry.Name, item.Entry.Bucket)
			if err != nil {
				fmt.Fprintln(os.Stderr, i18n.T("InstallFailed", map[string]any{"Name": item.ID(), "Error": gitError(err).Error()}))
				failed = append(failed, err)
				continue
			}
			fmt.Println(i18n.T("InstallSuccess", map[string]any{"Name": p.Name, "Bucket": p.Origin.Bucket, "Version": p.Version}))
		}
	}
	return errors.Join(failed...)
}

func runModLink(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.reg.Link(args[0], args[1]); err != nil {
		return err
	}
	fmt.Println(i18n.T("LinkSuccess", map[string]any{"Name": args[0], "Path": args[1]}))
	return nil
}

func runModUnlink(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.reg.Unlink(args[0]); err != nil {
		return err
	}
	fmt.Println(i18n.T("UnlinkSuccess", map[string]any{"Name": args[0]}))
	return nil
}

func runModOutdated(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	result := autoupdate.NewChecker(a.reg).Check(cmd.Context(), modOutdatedPull)
	autoupdate.ShowUpdateSummary(os.Stdout, result)
	return nil
}
