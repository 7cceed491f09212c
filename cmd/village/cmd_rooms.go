package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/village-chat/internal/client/rest"
	"github.com/vovakirdan/village-chat/internal/config"
	"github.com/vovakirdan/village-chat/internal/core"
	"github.com/vovakirdan/village-chat/internal/proto"
	"github.com/vovakirdan/village-chat/internal/terminal"
)

var (
	roomsDelete string
	roomsCreate proto.CreateRoomRequest
	historyRoom string
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List, create or delete your chat rooms",
	RunE:  runRooms,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the message log of a room",
	RunE:  runHistory,
}

func init() {
	roomsCmd.Flags().StringVar(&roomsDelete, "delete", "", "delete the room with this id")
	roomsCmd.Flags().Int64Var(&roomsCreate.PostID, "post", 0, "create a room for this listing id")
	roomsCmd.Flags().StringVar(&roomsCreate.Writer, "writer", "", "listing writer to chat with (with --post)")

	historyCmd.Flags().StringVar(&historyRoom, "room", "", "room id")
	_ = historyCmd.MarkFlagRequired("room")
}

func restClient(cfg config.Config) (*rest.Client, error) {
	if cfg.Client.Token == "" {
		return nil, errors.New("client.token is not configured (set VILLAGE_CLIENT_TOKEN)")
	}
	return rest.New(cfg.Client.BaseURL, cfg.Client.Token), nil
}

func runRooms(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := restClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.FetchTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	switch {
	case roomsDelete != "":
		if err := client.DeleteRoom(ctx, roomsDelete); err != nil {
			return fmt.Errorf("delete room %s: %w", roomsDelete, err)
		}
		logger.Info().Str("room", roomsDelete).Msg("room deleted")
		return nil
	case roomsCreate.PostID != 0:
		room, err := client.CreateRoom(ctx, roomsCreate)
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		fmt.Fprintln(out, room.RoomID)
		return nil
	}

	rooms, err := client.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tPOST\tWITH\tLAST\tAT")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", r.RoomID, r.PostID, r.Counterpart, r.LastChat, r.LastChatAt)
	}
	return tw.Flush()
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := restClient(cfg)
	if err != nil {
		return err
	}
	self, err := selfFromToken(cfg.Client.Token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.FetchTimeout)
	defer cancel()

	history, err := client.FetchHistory(ctx, historyRoom)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	log := core.NewMessageStore()
	if err := log.MergeHistory(history.Messages); err != nil {
		return err
	}
	messages := log.All()
	grouped := core.Classify(messages)
	view := core.View{Room: historyRoom, Info: history.Room, State: core.StateActive, Rows: make([]core.Row, len(messages))}
	for i, m := range messages {
		view.Rows[i] = core.Row{Message: m, Grouped: grouped[i], Mine: m.Sender == self}
	}

	terminal.NewPrinter(cmd.OutOrStdout(), self).Render(view)
	return nil
}
