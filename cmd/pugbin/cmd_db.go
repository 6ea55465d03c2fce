package main

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/go-while/go-pugbin/internal/database"
	"github.com/go-while/go-pugbin/internal/models"
	"github.com/go-while/go-pugbin/internal/processor"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|up-one|down|status|version|reset]",
	Short:     "Manage the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "up-one", "down", "status", "version", "reset"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		command := "up"
		if len(args) == 1 {
			command = args[0]
		}
		return db.MigrateCommand(cmd.Context(), command)
	},
}

var groupInactive, groupActiveOnly, groupLazyNames bool

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage indexed newsgroups",
}

var groupAddCmd = &cobra.Command{
	Use:   "add GROUP...",
	Short: "Add newsgroups to the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			if !processor.IsValidGroupName(name, groupLazyNames) {
				return fmt.Errorf("invalid group name %q", name)
			}
		}
		return withDatabase(cmd, func(db *database.Database) error {
			for _, name := range args {
				g, err := db.CreateGroup(cmd.Context(), name, !groupInactive)
				if err != nil {
					return err
				}
				fmt.Printf("added %s (id %d, active %v)\n", g.Name, g.ID, g.Active)
			}
			return nil
		})
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List newsgroups with their watermarks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(db *database.Database) error {
			groups, err := db.ListGroups(cmd.Context(), groupActiveOnly)
			if err != nil {
				return err
			}
			fmt.Printf("%-48s %-6s %12s %12s\n", "GROUP", "ACTIVE", "FIRST", "LAST")
			for _, g := range groups {
				fmt.Printf("%-48s %-6v %12s %12s\n", g.Name, g.Active, watermark(g.First), watermark(g.Last))
			}
			return nil
		})
	},
}

func setActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " GROUP...",
		Short: use + " newsgroups for update --all and backfill --all",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(db *database.Database) error {
				for _, name := range args {
					if err := db.SetGroupActive(cmd.Context(), name, active); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

var (
	blacklistGroup, blacklistSubject, blacklistDescription string
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage subject blacklist rules",
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule dropping subjects matching --subject in groups matching --group",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, pattern := range []string{blacklistGroup, blacklistSubject} {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
		}
		return withDatabase(cmd, func(db *database.Database) error {
			id, err := db.AddBlacklist(cmd.Context(), models.BlacklistRule{
				GroupName:   blacklistGroup,
				Regex:       blacklistSubject,
				Description: blacklistDescription,
				Active:      true,
			})
			if err != nil {
				return err
			}
			fmt.Printf("added blacklist rule %d\n", id)
			return nil
		})
	},
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklist rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(db *database.Database) error {
			rules, err := db.ListBlacklists(cmd.Context(), false)
			if err != nil {
				return err
			}
			for _, r := range rules {
				fmt.Printf("%4d active=%-5v group=%q subject=%q %s\n", r.ID, r.Active, r.GroupName, r.Regex, r.Description)
			}
			return nil
		})
	},
}

func init() {
	groupAddCmd.Flags().BoolVar(&groupInactive, "inactive", false, "Add the group disabled")
	groupAddCmd.Flags().BoolVar(&groupLazyNames, "lazy-group-names", false, "Accept upper-case and single-component group names")
	groupListCmd.Flags().BoolVar(&groupActiveOnly, "active", false, "Only list active groups")
	groupCmd.AddCommand(groupAddCmd, groupListCmd, setActiveCmd("enable", true), setActiveCmd("disable", false))

	blacklistAddCmd.Flags().StringVar(&blacklistGroup, "group", ".*", "Regex matched against the group name")
	blacklistAddCmd.Flags().StringVar(&blacklistSubject, "subject", "", "Regex matched against the subject")
	blacklistAddCmd.Flags().StringVar(&blacklistDescription, "description", "", "Free text note")
	blacklistAddCmd.MarkFlagRequired("subject")
	blacklistCmd.AddCommand(blacklistAddCmd, blacklistListCmd)
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(cmd *cobra.Command, fn func(db *database.Database) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func watermark(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
