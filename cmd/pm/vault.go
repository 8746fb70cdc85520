package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
	"github.com/muchacho/personal-manager/internal/ui"
	"github.com/muchacho/personal-manager/internal/vault"
)

var vaultCmd = &cobra.Command{
	Use:     "vault",
	GroupID: "vault",
	Short:   "Manage stored passwords",
	Long: `Manage stored passwords. Secrets are encrypted with a key derived from
the vault passphrase (PM_VAULT_PASSPHRASE, or prompted for).`,
}

var vaultAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a password",
	Long: `Store a password. Missing fields are asked for in an interactive form.

  pm vault add --title mail --user me@example.com --generate`,
	Run: func(cmd *cobra.Command, args []string) {
		title, _ := cmd.Flags().GetString("title")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")
		notes, _ := cmd.Flags().GetString("notes")
		generate, _ := cmd.Flags().GetBool("generate")
		questions, _ := cmd.Flags().GetStringArray("question")

		if generate {
			p, err := vault.GeneratePassword(vault.DefaultGenerateOptions())
			if err != nil {
				fatal("%v", err)
			}
			pass = p
		}
		if title == "" || pass == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fatal("--title and --pass (or --generate) are required")
			}
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Title").Value(&title),
				huh.NewInput().Title("Username").Value(&user),
				huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&pass),
			))
			if err := form.Run(); err != nil {
				fatal("%v", err)
			}
		}
		if title == "" || pass == "" {
			fatal("title and password cannot be empty")
		}

		withApp(func(ctx context.Context, a *app) {
			c := a.openCipher()
			rec := schema.Password{ID: a.state.NewID(), Title: title, User: user, Notes: notes}
			rec.Pass = mustEncrypt(c, pass)
			for _, q := range questions {
				question, answer, ok := strings.Cut(q, "=")
				if !ok {
					fatal("invalid --question %q (want \"question=answer\")", q)
				}
				rec.Questions = append(rec.Questions, schema.SecurityQuestion{Q: question, A: mustEncrypt(c, answer)})
			}
			a.update(ctx, state.Passwords.Add(rec))
			done("Stored %s (%s)", ui.RenderAccent(title), shortID(rec.ID))
		})
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored passwords without revealing them",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			a.view(func(s *schema.Snapshot) {
				if len(s.Passwords) == 0 {
					fmt.Println(ui.RenderMuted("Vault is empty."))
					return
				}
				rows := make([][]string, 0, len(s.Passwords))
				for _, p := range s.Passwords {
					rows = append(rows, []string{shortID(p.ID), p.Title, p.User, p.UpdatedAt.Local().Format("2006-01-02 15:04")})
				}
				fmt.Println(ui.Table([]string{"ID", "Title", "User", "Updated"}, rows))
			})
		})
	},
}

var vaultShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Reveal a stored password",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			var ids []string
			a.view(func(s *schema.Snapshot) {
				for _, p := range s.Passwords {
					ids = append(ids, p.ID)
				}
			})
			id := resolveID("password", ids, args[0])
			c := a.openCipher()
			a.view(func(s *schema.Snapshot) {
				p, _ := state.Passwords.Find(s, id)
				fmt.Printf("%s %s\n", ui.RenderHeader(p.Title), ui.RenderMuted(shortID(p.ID)))
				fmt.Printf("User:     %s\n", p.User)
				fmt.Printf("Password: %s\n", c.Decrypt(p.Pass))
				for _, q := range p.Questions {
					fmt.Printf("Q: %s\nA: %s\n", q.Q, c.Decrypt(q.A))
				}
				if p.Notes != "" {
					fmt.Printf("Notes:    %s\n", p.Notes)
				}
			})
		})
	},
}

var vaultGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a random password",
	Run: func(cmd *cobra.Command, args []string) {
		opts := vault.DefaultGenerateOptions()
		opts.Length, _ = cmd.Flags().GetInt("length")
		noUpper, _ := cmd.Flags().GetBool("no-upper")
		noLower, _ := cmd.Flags().GetBool("no-lower")
		noDigits, _ := cmd.Flags().GetBool("no-digits")
		noSymbols, _ := cmd.Flags().GetBool("no-symbols")
		opts.Uppercase = !noUpper
		opts.Lowercase = !noLower
		opts.Numbers = !noDigits
		opts.Symbols = !noSymbols

		p, err := vault.GeneratePassword(opts)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(p)
	},
}

var vaultEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a stored password",
	Long: `Change a stored password. Only the flags given are applied; the entry
moves to the top of the vault.

  pm vault edit 3f2a --generate`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		title, _ := flags.GetString("title")
		user, _ := flags.GetString("user")
		pass, _ := flags.GetString("pass")
		notes, _ := flags.GetString("notes")
		generate, _ := flags.GetBool("generate")

		if generate {
			p, err := vault.GeneratePassword(vault.DefaultGenerateOptions())
			if err != nil {
				fatal("%v", err)
			}
			pass = p
		}
		if flags.Changed("title") && title == "" {
			fatal("title cannot be empty")
		}
		if flags.Changed("pass") && pass == "" {
			fatal("password cannot be empty")
		}

		withApp(func(ctx context.Context, a *app) {
			var ids []string
			a.view(func(s *schema.Snapshot) {
				for _, p := range s.Passwords {
					ids = append(ids, p.ID)
				}
			})
			id := resolveID("password", ids, args[0])
			var encrypted string
			if pass != "" {
				encrypted = mustEncrypt(a.openCipher(), pass)
			}
			a.update(ctx, state.Passwords.Edit(id, func(p *schema.Password) error {
				if flags.Changed("title") {
					p.Title = title
				}
				if flags.Changed("user") {
					p.User = user
				}
				if flags.Changed("notes") {
					p.Notes = notes
				}
				if encrypted != "" {
					p.Pass = encrypted
				}
				return nil
			}))
			done("Updated password %s", shortID(id))
		})
	},
}

var vaultRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a stored password",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			var ids []string
			a.view(func(s *schema.Snapshot) {
				for _, p := range s.Passwords {
					ids = append(ids, p.ID)
				}
			})
			id := resolveID("password", ids, args[0])
			a.update(ctx, state.Passwords.Delete(id))
			done("Deleted password %s", shortID(id))
		})
	},
}

var apiCmd = &cobra.Command{
	Use:     "api",
	GroupID: "vault",
	Short:   "Manage stored API keys",
}

var apiAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Store an API key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key, _ := cmd.Flags().GetString("key")
		secret, _ := cmd.Flags().GetString("secret")
		if key == "" {
			fatal("--key is required")
		}
		withApp(func(ctx context.Context, a *app) {
			c := a.openCipher()
			rec := schema.APIKey{ID: a.state.NewID(), Name: args[0], Key: mustEncrypt(c, key)}
			if secret != "" {
				rec.Secret = mustEncrypt(c, secret)
			}
			a.update(ctx, state.APIs.Add(rec))
			done("Stored API key %s", ui.RenderAccent(args[0]))
		})
	},
}

var apiListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API keys",
	Run: func(cmd *cobra.Command, args []string) {
		reveal, _ := cmd.Flags().GetBool("reveal")
		withApp(func(ctx context.Context, a *app) {
			var c *vault.Cipher
			if reveal {
				c = a.openCipher()
			}
			a.view(func(s *schema.Snapshot) {
				if len(s.APIs) == 0 {
					fmt.Println(ui.RenderMuted("No API keys."))
					return
				}
				rows := make([][]string, 0, len(s.APIs))
				for _, k := range s.APIs {
					value := "••••••••"
					if c != nil {
						value = c.Decrypt(k.Key)
					}
					rows = append(rows, []string{shortID(k.ID), k.Name, value})
				}
				fmt.Println(ui.Table([]string{"ID", "Name", "Key"}, rows))
			})
		})
	},
}

var apiRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a stored API key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			var ids []string
			a.view(func(s *schema.Snapshot) {
				for _, k := range s.APIs {
					ids = append(ids, k.ID)
				}
			})
			id := resolveID("API key", ids, args[0])
			a.update(ctx, state.APIs.Delete(id))
			done("Deleted API key %s", shortID(id))
		})
	},
}

var cardCmd = &cobra.Command{
	Use:     "card",
	GroupID: "vault",
	Short:   "Manage stored payment cards",
}

var cardAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Store a card",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		number, _ := cmd.Flags().GetString("number")
		exp, _ := cmd.Flags().GetString("exp")
		cvv, _ := cmd.Flags().GetString("cvv")
		number = strings.ReplaceAll(number, " ", "")
		if len(number) < 4 {
			fatal("--number must have at least 4 digits")
		}
		withApp(func(ctx context.Context, a *app) {
			c := a.openCipher()
			rec := schema.Card{
				ID:     a.state.NewID(),
				Name:   args[0],
				Number: mustEncrypt(c, number),
				Last4:  number[len(number)-4:],
				Exp:    exp,
				CVV:    mustEncrypt(c, cvv),
			}
			a.update(ctx, state.Cards.Add(rec))
			done("Stored card %s ending in %s", ui.RenderAccent(args[0]), rec.Last4)
		})
	},
}

var cardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored cards",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			a.view(func(s *schema.Snapshot) {
				if len(s.Cards) == 0 {
					fmt.Println(ui.RenderMuted("No cards."))
					return
				}
				rows := make([][]string, 0, len(s.Cards))
				for _, c := range s.Cards {
					rows = append(rows, []string{shortID(c.ID), c.Name, "•••• " + c.Last4, c.Exp})
				}
				fmt.Println(ui.Table([]string{"ID", "Name", "Number", "Exp"}, rows))
			})
		})
	},
}

var cardRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a stored card",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			var ids []string
			a.view(func(s *schema.Snapshot) {
				for _, c := range s.Cards {
					ids = append(ids, c.ID)
				}
			})
			id := resolveID("card", ids, args[0])
			a.update(ctx, state.Cards.Delete(id))
			done("Deleted card %s", shortID(id))
		})
	},
}

func mustEncrypt(c *vault.Cipher, plaintext string) string {
	out, err := c.Encrypt(plaintext)
	if err != nil {
		fatal("%v", err)
	}
	return out
}

func init() {
	vaultAddCmd.Flags().String("title", "", "Entry title")
	vaultAddCmd.Flags().String("user", "", "Username")
	vaultAddCmd.Flags().String("pass", "", "Password (prefer the interactive prompt)")
	vaultAddCmd.Flags().String("notes", "", "Free-form notes")
	vaultAddCmd.Flags().Bool("generate", false, "Generate a random password")
	vaultAddCmd.Flags().StringArray("question", nil, "Security question as \"question=answer\" (repeatable)")

	vaultEditCmd.Flags().String("title", "", "New title")
	vaultEditCmd.Flags().String("user", "", "New username")
	vaultEditCmd.Flags().String("pass", "", "New password")
	vaultEditCmd.Flags().String("notes", "", "New notes")
	vaultEditCmd.Flags().Bool("generate", false, "Replace the password with a generated one")

	vaultGenCmd.Flags().IntP("length", "l", 16, "Password length")
	vaultGenCmd.Flags().Bool("no-upper", false, "Exclude uppercase letters")
	vaultGenCmd.Flags().Bool("no-lower", false, "Exclude lowercase letters")
	vaultGenCmd.Flags().Bool("no-digits", false, "Exclude digits")
	vaultGenCmd.Flags().Bool("no-symbols", false, "Exclude symbols")

	apiAddCmd.Flags().String("key", "", "API key")
	apiAddCmd.Flags().String("secret", "", "API secret")
	apiListCmd.Flags().Bool("reveal", false, "Decrypt and show keys")

	cardAddCmd.Flags().String("number", "", "Card number")
	cardAddCmd.Flags().String("exp", "", "Expiry (MM/YY)")
	cardAddCmd.Flags().String("cvv", "", "Security code")

	vaultCmd.AddCommand(vaultAddCmd)
	vaultCmd.AddCommand(vaultListCmd)
	vaultCmd.AddCommand(vaultShowCmd)
	vaultCmd.AddCommand(vaultEditCmd)
	vaultCmd.AddCommand(vaultGenCmd)
	vaultCmd.AddCommand(vaultRmCmd)
	apiCmd.AddCommand(apiAddCmd)
	apiCmd.AddCommand(apiListCmd)
	apiCmd.AddCommand(apiRmCmd)
	cardCmd.AddCommand(cardAddCmd)
	cardCmd.AddCommand(cardListCmd)
	cardCmd.AddCommand(cardRmCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(cardCmd)
}
