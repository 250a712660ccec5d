package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"auction-sync/internal/ledger"
	"auction-sync/internal/models"
	"auction-sync/internal/repository"
	"auction-sync/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Now().UTC()
	repo := repository.NewMemoryRepo()
	repo.AddUser(models.User{UserID: "alice", FirstName: "Alice", LastName: "Smith"})
	repo.AddUser(models.User{UserID: "bob", FirstName: "Bob"})
	repo.AddItem(models.AuctionItem{
		ID:              "item1",
		SellerID:        "alice",
		Title:           "Lamp",
		StartingPrice:   decimal.NewFromInt(90),
		MinBidIncrement: decimal.NewFromInt(5),
		HighestBid:      decimal.NewFromInt(90),
		EndTime:         now.Add(time.Hour),
		CreatedAt:       now,
	})

	l := ledger.New(repo, ledger.Options{})
	srv := httptest.NewServer(server.SetupRouter(l, nil))
	t.Cleanup(func() {
		l.Shutdown()
		srv.Close()
	})
	return srv.URL
}

// run executes auctionctl with args and returns what it printed
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer

	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCmd_BidFlow(t *testing.T) {
	url := testServer(t)

	out, err := run(t, "items", "--server", url)
	require.NoError(t, err)
	require.Contains(t, out, "item1\tLamp\thighest 90\tnext 95")

	out, err = run(t, "bid", "item1", "100", "--server", url, "--user", "bob")
	require.NoError(t, err)
	require.Contains(t, out, "accepted: sequence 1, 100 on Lamp")

	_, err = run(t, "bid", "item1", "102", "--server", url, "--user", "alice")
	require.ErrorContains(t, err, "too low")

	out, err = run(t, "bid", "item1", "105", "--server", url, "--user", "alice")
	require.NoError(t, err)
	require.Contains(t, out, "sequence 2")

	out, err = run(t, "history", "item1", "--server", url)
	require.NoError(t, err)
	require.Contains(t, out, "#2\t105\tAlice S.")
	require.Contains(t, out, "#1\t100\tBob")
	require.Contains(t, out, "(end of history)")

	out, err = run(t, "history", "item1", "--before", "2", "--server", url)
	require.NoError(t, err)
	require.NotContains(t, out, "#2")
	require.Contains(t, out, "#1\t100")

	out, err = run(t, "inbox", "--server", url, "--user", "bob")
	require.NoError(t, err)
	require.Contains(t, out, "You were outbid on Lamp!")

	out, err = run(t, "watch", "item1", "--once", "--server", url, "--user", "bob")
	require.NoError(t, err)
	require.Contains(t, out, "Lamp (item1)")
	require.Contains(t, out, "#1\t100\tBob")
	require.Contains(t, out, "#2\t105\tAlice S.")
}

func TestRootCmd_Pin(t *testing.T) {
	url := testServer(t)

	out, err := run(t, "pin", "item1", "--server", url, "--user", "alice")
	require.NoError(t, err)
	require.Equal(t, "pinned Lamp\n", out)

	out, err = run(t, "pin", "item1", "--server", url, "--user", "alice")
	require.NoError(t, err)
	require.Equal(t, "unpinned Lamp\n", out)
}

func TestRootCmd_Errors(t *testing.T) {
	url := testServer(t)

	cases := []struct {
		name string
		args []string
		msg  string
	}{
		{"bid_without_user", []string{"bid", "item1", "100", "--server", url}, "user id is required"},
		{"bid_malformed", []string{"bid", "item1", "lots", "--server", url, "--user", "bob"}, "invalid"},
		{"unknown_item", []string{"bid", "itemX", "100", "--server", url, "--user", "bob"}, "not found"},
		{"bad_server", []string{"items", "--server", "ftp://ledger"}, "must be http or https"},
		{"missing_args", []string{"history", "--server", url}, "accepts 1 arg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, tc.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestRootCmd_ConfigFile(t *testing.T) {
	url := testServer(t)
	path := filepath.Join(t.TempDir(), "auctionctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: "+url+"\nuser_id: bob\nhistory_page_size: 1\n"), 0o600))

	out, err := run(t, "bid", "item1", "100", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, "accepted")
}

func TestRootCmd_WatchOlder(t *testing.T) {
	url := testServer(t)

	bidders := []string{"alice", "bob"}
	for i := 0; i < 7; i++ {
		_, err := run(t, "bid", "item1", fmt.Sprint(100+5*i), "--server", url, "--user", bidders[i%2])
		require.NoError(t, err)
	}

	out, err := run(t, "watch", "item1", "--once", "--server", url, "--user", "bob")
	require.NoError(t, err)
	require.Contains(t, out, "#7\t130")
	require.NotContains(t, out, "#2\t")

	out, err = run(t, "watch", "item1", "--once", "--older", "1", "--server", url, "--user", "bob")
	require.NoError(t, err)
	for seq := 1; seq <= 7; seq++ {
		require.Contains(t, out, fmt.Sprintf("#%d\t", seq))
	}
	require.Less(t, strings.Index(out, "#1\t"), strings.Index(out, "#7\t"))
}
