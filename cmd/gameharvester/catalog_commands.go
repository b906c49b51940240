package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"GameHarvester/internal/app"
	"GameHarvester/internal/domain"
	"GameHarvester/internal/infrastructure/storage"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the stored catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				stats, err := a.Catalog().Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats))
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <app-id>",
		Short: "Display one stored game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid app id %q", args[0])
			}
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				game, err := a.Catalog().Game(cmd.Context(), domain.ItemID(id))
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("app %d is not in the catalog", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderGame(*game))
				return nil
			})
		},
	}
}

const gamesExample = `  gameharvester games --tag RPG --tag "Open World" --order reviews
  gameharvester games --free --limit 20
  gameharvester games --min-discount 50 --order discount`

var listingOrders = map[string]domain.ListingOrder{
	"id":       domain.OrderByID,
	"reviews":  domain.OrderByReviews,
	"discount": domain.OrderByDiscount,
	"rating":   domain.OrderByRating,
}

func newGamesCommand(ctx *commandContext) *cobra.Command {
	var (
		query domain.GameQuery
		order string
	)

	cmd := &cobra.Command{
		Use:     "games",
		Short:   "Search the stored catalog",
		Example: gamesExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := listingOrders[order]
			if !ok {
				return fmt.Errorf("unknown order %q (id, reviews, discount, rating)", order)
			}
			query.OrderBy = parsed
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				games, err := a.Catalog().Search(cmd.Context(), query)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderListings(games))
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&query.Title, "title", "", "Title contains")
	f.StringVar(&query.Developer, "developer", "", "Developer contains")
	f.StringArrayVar(&query.Tags, "tag", nil, "Require a tag (repeatable)")
	f.StringArrayVar(&query.Genres, "genre", nil, "Require a genre (repeatable)")
	f.BoolVar(&query.FreeOnly, "free", false, "Only free games")
	f.IntVar(&query.MinDiscount, "min-discount", 0, "Minimum discount percent")
	f.IntVar(&query.MinPositive, "min-positive", 0, "Minimum positive review percent")
	f.StringVar(&order, "order", "id", "Sort by id, reviews, discount or rating")
	f.IntVar(&query.Limit, "limit", 50, "Maximum rows")

	return cmd
}
