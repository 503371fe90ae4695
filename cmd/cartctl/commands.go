package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dralsallum/theKnot-sub000/pkg/logger"
)

// cli carries state shared by every subcommand.
type cli struct {
	out    io.Writer
	errOut io.Writer

	apiURL   string
	userID   string
	logLevel string

	client *apiClient
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "cartctl",
		Short:         "Inspect and drive wedding planner carts",
		Long:          `cartctl talks to the cart session service on behalf of one signed-in user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.apiURL, "api-url", "", "cart API base URL (default $CARTCTL_API_URL)")
	flags.StringVarP(&c.userID, "user", "u", "", "user id sent as X-User-ID (default $CARTCTL_USER_ID)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (default $CARTCTL_LOG_LEVEL)")

	root.AddCommand(
		c.showCmd(),
		c.addCmd(),
		c.removeCmd(),
		c.clearCmd(),
		c.checkoutCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("api-url") {
		cfg.APIURL = c.apiURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("user") {
		cfg.UserID = c.userID
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return errors.New("no user: pass --user or set CARTCTL_USER_ID")
	}

	c.client = &apiClient{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.APIURL,
		userID:  cfg.UserID,
		logger: logger.NewWithOptions(logger.Options{
			Service: "cartctl",
			Level:   cfg.LogLevel,
			Format:  "text",
			Writer:  c.errOut,
		}),
	}
	return nil
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printCart(c.client.getCart(cmd.Context()))
		},
	}
}

func (c *cli) addCmd() *cobra.Command {
	var body addItemBody
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Long: `Adds a product, or raises the quantity of a line already in the cart.
The unit price is in cents and is kept from the first add.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body.ProductID = args[0]
			if body.Name == "" {
				body.Name = args[0]
			}
			return c.printCart(c.client.addItem(cmd.Context(), body))
		},
	}
	cmd.Flags().StringVar(&body.Name, "name", "", "display name (defaults to the product id)")
	cmd.Flags().StringVar(&body.Category, "category", "", "product category")
	cmd.Flags().StringVar(&body.ImageURL, "image-url", "", "product image URL")
	cmd.Flags().Int64Var(&body.UnitPrice, "price", 0, "unit price in cents")
	cmd.Flags().IntVarP(&body.Quantity, "quantity", "q", 1, "quantity to add")
	return cmd
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <product-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a product line from the cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printCart(c.client.removeItem(cmd.Context(), args[0]))
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printCart(c.client.clear(cmd.Context()))
		},
	}
}

func (c *cli) checkoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Pay for the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCheckout(cmd.Context())
		},
	}
}

func (c *cli) runCheckout(ctx context.Context) error {
	res, err := c.client.checkout(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "payment %s: %s\n", res.PaymentID, res.PaymentStatus)
	if res.CheckoutURL != "" {
		fmt.Fprintf(c.out, "complete payment at %s\n", res.CheckoutURL)
	}
	return c.printCart(&res.Cart, nil)
}

func (c *cli) printCart(crt *cart, err error) error {
	if err != nil {
		return err
	}
	if len(crt.Lines) == 0 {
		fmt.Fprintf(c.out, "cart is empty (status %s, version %d)\n", crt.Status, crt.Version)
		return nil
	}

	recent := make(map[string]bool, len(crt.RecentlyAdded))
	for _, id := range crt.RecentlyAdded {
		recent[id] = true
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tUNIT\tSUBTOTAL\t")
	for _, l := range crt.Lines {
		mark := ""
		if recent[l.ProductID] {
			mark = "added"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			l.ProductID, l.Name, l.Quantity, formatCents(l.UnitPrice), formatCents(l.UnitPrice*int64(l.Quantity)), mark)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write cart: %w", err)
	}
	fmt.Fprintf(c.out, "%d products, total %s, status %s, version %d\n",
		crt.TotalQuantity, formatCents(crt.TotalPrice), crt.Status, crt.Version)
	return nil
}

func formatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
