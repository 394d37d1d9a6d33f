package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egoavara/modmgr/internal/git"
	"github.com/egoavara/modmgr/internal/i18n"
	"github.com/egoavara/modmgr/internal/modmgr"
	"github.com/egoavara/modmgr/internal/search"
)

var bucketCmd = &cobra.Command{
	Use:     "bucket",
	Aliases: []string{"b"},
	Short:   "Manage buckets",
	Long: `Manage buckets, the git repositories mods are installed from.

Commands:
  add     Add a new bucket from a git URL
  rm      Remove a registered bucket
  list    List all registered buckets
  update  Pull bucket(s)`,
}

var bucketAddCmd = &cobra.Command{
	Use:   "add <git-url>",
	Short: "Add a bucket repository",
	Long: `Add a bucket repository from a git URL. The bucket is named
{owner}_{repo} after the URL.

Example:
  modmgr bucket add https://github.com/org/mods
  modmgr bucket add git@github.com:org/mods.git`,
	Args: cobra.ExactArgs(1),
	RunE: runBucketAdd,
}

var bucketRmCmd = &cobra.Command{
	Use:     "rm <name>",
	Aliases: []string{"del", "remove"},
	Short:   "Remove a registered bucket",
	Args:    cobra.ExactArgs(1),
	RunE:    runBucketRm,
}

var bucketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered buckets",
	Long: `List all registered buckets in registration order.

Example:
  modmgr bucket list
  modmgr bucket list --all  # Show available mods`,
	RunE: runBucketList,
}

var bucketUpdateCmd = &cobra.Command{
	Use:   "update [name]",
	Short: "Pull bucket(s)",
	Long: `Pull all buckets or a specific bucket.

Example:
  modmgr bucket update              # Update all
  modmgr bucket update org_mods     # Update specific`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBucketUpdate,
}

var bucketListAll bool

func init() {
	bucketListCmd.Flags().BoolVarP(&bucketListAll, "all", "a", false, "show available mods of each bucket")

	bucketCmd.AddCommand(bucketAddCmd)
	bucketCmd.AddCommand(bucketRmCmd)
	bucketCmd.AddCommand(bucketListCmd)
	bucketCmd.AddCommand(bucketUpdateCmd)
}

// gitError localizes clone and pull failures.
func gitError(err error) error {
	var authErr *git.AuthError
	switch {
	case errors.As(err, &authErr):
		return fmt.Errorf("%s: %w", i18n.T("GitAuthFailed", map[string]any{"URL": authErr.URL}), err)
	case errors.Is(err, git.ErrCloneFailed):
		return fmt.Errorf("%s: %w", i18n.T("GitCloneFailed", nil), err)
	case errors.Is(err, git.ErrPullFailed):
		return fmt.Errorf("%s: %w", i18n.T("GitPullFailed", nil), err)
	}
	return err
}

func runBucketAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	fmt.Printf("Cloning %s...\n", args[0])
	b, err := a.reg.AddBucket(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, modmgr.ErrDuplicateBucket) {
			return fmt.Errorf("%s: %w", i18n.T("AlreadyExists", map[string]any{"Name": args[0]}), err)
		}
		return gitError(err)
	}

	fmt.Println(i18n.T("AddSuccess", map[string]any{"Name": b.Name}))
	return nil
}

func runBucketRm(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.reg.RemoveBucket(args[0]); err != nil {
		if errors.Is(err, modmgr.ErrBucketNotFound) {
			return fmt.Errorf("%s: %w", i18n.T("BucketNotFound", map[string]any{"Name": args[0]}), err)
		}
		return err
	}
	fmt.Println(i18n.T("BucketRemoved", map[string]any{"Name": args[0]}))
	return nil
}

func runBucketList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	printBuckets(a.reg, bucketListAll)
	return nil
}

func printBuckets(reg *modmgr.Registry, all bool) {
	printHeader(i18n.T("ListBucketsHeader", nil))

	buckets := reg.Buckets()
	if len(buckets) == 0 {
		fmt.Println(i18n.T("NoBuckets", nil))
		return
	}

	var entries map[string][]search.Entry
	if all {
		entries = reg.SearchEntries()
	}

	for _, b := range buckets {
		fmt.Printf("  %s (%s)\n", b.Name, b.Kind)
		fmt.Printf("    URL: %s\n", b.SourceURL)
		fmt.Printf("    Path: %s\n", b.Path)

		if all {
			for _, e := range entries[b.Name] {
				switch {
				case e.Remote != "":
					fmt.Printf("      - %s -> %s\n", e.Name, e.Remote)
				case e.Version != "":
					fmt.Printf("      - %s (v%s)\n", e.Name, e.Version)
				default:
					fmt.Printf("      - %s\n", e.Name)
				}
				if e.Description != "" {
					fmt.Printf("        %s\n", e.Description)
				}
			}
		}
		fmt.Println()
	}
}

func runBucketUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		fmt.Printf("Updating %s...\n", args[0])
		if err := a.reg.UpdateBucket(cmd.Context(), args[0]); err != nil {
			return gitError(err)
		}
		fmt.Println(i18n.T("UpdateSuccess", map[string]any{"Target": args[0]}))
		return nil
	}

	results := a.reg.UpdateAllBuckets(cmd.Context())
	if len(results) == 0 {
		fmt.Println(i18n.T("NoBuckets", nil))
		return nil
	}

	var failed []error
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  %s: %v\n", r.Name, gitError(r.Err))
			failed = append(failed, r.Err)
			continue
		}
		fmt.Printf("  %s: done\n", r.Name)
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	fmt.Println(i18n.T("UpdateAllSuccess", nil))
	return nil
}
