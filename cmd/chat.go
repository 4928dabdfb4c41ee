package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ti-portal/pkg/chat"
	"ti-portal/pkg/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	chatWallet string
	chatAsOp   bool
	chatGuest  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Read and post in the community chat",
	Long: `The community chat keeps the latest 50 messages.

Examples:
  ti-portal chat list
  ti-portal chat post "gm"
  ti-portal chat post --admin "Airdrop round two is live"
  ti-portal chat delete <message-id>`,
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the chat history",
	Args:  cobra.NoArgs,
	Run:   runChatList,
}

var chatPostCmd = &cobra.Command{
	Use:   "post <message>",
	Short: "Post a message",
	Long: `Post a message. The author is derived from the configured wallet, or from
--wallet. Without either the message is posted as Guest.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runChatPost,
}

var chatDeleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete a message (operator only)",
	Args:  cobra.ExactArgs(1),
	Run:   runChatDelete,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.PersistentFlags().StringVar(&adminUser, "user", "", "Operator username (default from site settings)")
	chatCmd.PersistentFlags().StringVar(&adminPassword, "password", "", "Operator password (prompted when empty)")

	chatPostCmd.Flags().StringVar(&chatWallet, "wallet", "", "Wallet address to post as")
	chatPostCmd.Flags().BoolVar(&chatAsOp, "admin", false, "Post as the operator")
	chatPostCmd.Flags().BoolVar(&chatGuest, "guest", false, "Post as Guest even when a wallet is configured")

	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatPostCmd)
	chatCmd.AddCommand(chatDeleteCmd)
}

func mustRoom(a *app) *chat.Room {
	room, err := a.room()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return room
}

func runChatList(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.close()

	messages := mustRoom(a).List()
	if a.json {
		jsonData, _ := json.MarshalIndent(messages, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayMessages(messages)
}

func displayMessages(messages []types.PublicMessage) {
	if len(messages) == 0 {
		color.Yellow("\nNo messages yet.\n")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          COMMUNITY CHAT")
	fmt.Println(strings.Repeat("=", 70) + "\n")

	for _, m := range messages {
		author := color.CyanString(m.Author)
		if m.Author == "ADMIN" {
			author = color.RedString(m.Author)
		}
		fmt.Printf("  %s %s: %s\n", color.HiBlackString(m.Timestamp.Local().Format(time.Kitchen)), author, m.Text)
		fmt.Printf("  %s\n", color.HiBlackString("  id "+m.ID))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func runChatPost(cmd *cobra.Command, args []string) {
	var a *app
	if chatAsOp {
		a = mustOperator(cmd)
	} else {
		a = mustApp(cmd)
	}
	defer a.close()

	sender := chat.Sender{Operator: chatAsOp, Wallet: chatWallet}
	if sender.Wallet == "" && !chatGuest && a.provider != nil {
		sender.Wallet = a.provider.Address().Hex()
	}

	msg, err := mustRoom(a).Post(sender, strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	printSuccess(fmt.Sprintf("✓ Posted as %s", msg.Author))
}

func runChatDelete(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()

	err := mustRoom(a).Delete(chat.Sender{Operator: true}, args[0])
	if errors.Is(err, chat.ErrMessageNotFound) {
		color.Yellow("\nNo message with id %s.\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess("✓ Message deleted")
}
