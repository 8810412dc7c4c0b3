package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"food-ordering/internal/cartclient"
	"food-ordering/internal/config"
	"github.com/shopspring/decimal"
)

const usage = `usage: cartctl -session KEY [-url URL] COMMAND [ARGS]

commands:
  get
  add ITEM QTY PRICE [NAME]
  set ITEM QTY [ITEM QTY ...]   quantity changes are coalesced per item
  remove ITEM
  promo CODE
  unpromo
  checkout CUSTOMER ADDRESS [NOTES]
`

func main() {
	var baseURL, session string
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "API base URL")
	flag.StringVar(&session, "session", "", "Session key of the cart")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if session == "" || len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := log.New(os.Stderr, "[cartctl] ", log.LstdFlags|log.LUTC)
	client := cartclient.New(baseURL, session, cartclient.Options{Window: cfg.CoalesceWindow, Logger: logger})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout+cfg.PaymentTimeout)
	defer cancel()

	// Every mutation needs the current version first.
	if _, err := client.Refresh(ctx); err != nil {
		logger.Fatalf("fetch cart: %v", err)
	}

	out, err := run(ctx, client, args)
	if err != nil {
		var apiErr *cartclient.APIError
		if errors.As(err, &apiErr) {
			logger.Fatalf("%s (%d): %s", apiErr.Code, apiErr.StatusCode, apiErr.Message)
		}
		logger.Fatalf("%s: %v", args[0], err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Fatalf("encode output: %v", err)
	}
}

func run(ctx context.Context, client *cartclient.Client, args []string) (any, error) {
	cmd, args := args[0], args[1:]
	switch {
	case cmd == "get":
		return client.Cart(), nil
	case cmd == "add" && len(args) >= 3:
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("quantity: %w", err)
		}
		price, err := decimal.NewFromString(args[2])
		if err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		name := ""
		if len(args) > 3 {
			name = args[3]
		}
		return client.AddItem(ctx, args[0], name, qty, price)
	case cmd == "set" && len(args) >= 2 && len(args)%2 == 0:
		var pending []<-chan error
		for i := 0; i < len(args); i += 2 {
			qty, err := strconv.Atoi(args[i+1])
			if err != nil {
				return nil, fmt.Errorf("quantity for %s: %w", args[i], err)
			}
			pending = append(pending, client.SetQuantity(args[i], qty))
		}
		if err := client.Flush(ctx); err != nil {
			return nil, err
		}
		for _, ch := range pending {
			if err := <-ch; err != nil {
				return nil, err
			}
		}
		return client.Cart(), nil
	case cmd == "remove" && len(args) == 1:
		return client.RemoveItem(ctx, args[0])
	case cmd == "promo" && len(args) == 1:
		return client.ApplyPromo(ctx, args[0])
	case cmd == "unpromo":
		return client.RemovePromo(ctx)
	case cmd == "checkout" && len(args) >= 2:
		notes := ""
		if len(args) > 2 {
			notes = args[2]
		}
		return client.Checkout(ctx, args[0], args[1], notes)
	default:
		return nil, fmt.Errorf("unknown command or wrong arguments\n%s", usage)
	}
}
