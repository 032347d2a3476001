// Command chatstore inspects and manages the local cashu-mls-chat state: the
// Nostr identity, the MLS protocol store, and the ecash wallet store, over
// whichever persistence backend the config selects.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/SatsAndSports/cashu-mls-chat/internal/config"
	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
	"github.com/SatsAndSports/cashu-mls-chat/internal/storage/leveldb"
	"github.com/SatsAndSports/cashu-mls-chat/internal/storage/sqlite"
	"github.com/SatsAndSports/cashu-mls-chat/pkg/session"
	"github.com/SatsAndSports/cashu-mls-chat/pkg/wallet"
)

func main() {
	configPath := getEnv("CHATSTORE_CONFIG", "chatstore.toml")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	medium, closeMedium, err := openMedium(cfg)
	if err != nil {
		logger.Error("failed to open medium", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer closeMedium()

	mgr := session.NewManager(medium, session.Config{Logger: logger})

	cmd := "status"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "identity":
		err = runIdentity(mgr)
	case "status":
		err = runStatus(mgr)
	case "reset":
		err = runReset(mgr)
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [identity|status|reset]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func openMedium(cfg *config.Config) (storage.Medium, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryMedium(), func() {}, nil
	case config.BackendSQLite:
		m, err := sqlite.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { m.Close() }, nil
	case config.BackendLevelDB:
		m, err := leveldb.Open(filepath.Join(cfg.DataDir, "medium.ldb"))
		if err != nil {
			return nil, nil, err
		}
		return m, func() { m.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// runIdentity prints the session identity, creating one if needed.
func runIdentity(mgr *session.Manager) error {
	id, err := mgr.GetOrCreateIdentity()
	if err != nil {
		return err
	}
	npub, err := id.Npub()
	if err != nil {
		return err
	}
	fmt.Println(npub)
	return nil
}

// runStatus summarizes both stores.
func runStatus(mgr *session.Manager) error {
	mlsStore, err := mgr.MLS()
	if err != nil {
		return err
	}
	walletStore, err := mgr.Wallet()
	if err != nil {
		return err
	}

	groups, err := mlsStore.AllGroups()
	if err != nil {
		return err
	}
	pending, err := mlsStore.PendingWelcomes()
	if err != nil {
		return err
	}
	fmt.Printf("groups: %d\n", len(groups))
	for _, g := range groups {
		messages, err := mlsStore.Messages(g.MLSGroupID)
		if err != nil {
			return err
		}
		fmt.Printf("  %s  %q  messages=%d\n", g.NostrGroupID.Hex(), g.Name, len(messages))
	}
	fmt.Printf("pending welcomes: %d\n", len(pending))
	fmt.Printf("engine entries: %d\n", mlsStore.EngineStorage().Len())

	mints, err := walletStore.GetMints()
	if err != nil {
		return err
	}
	for url := range mints {
		proofs, err := walletStore.GetProofs(wallet.ProofFilter{
			MintURL: &url,
			States:  []wallet.ProofState{wallet.ProofStateUnspent},
		})
		if err != nil {
			return err
		}
		for _, line := range mintBalanceLines(url, proofs) {
			fmt.Println(line)
		}
	}
	txs, err := walletStore.ListTransactions(wallet.TransactionFilter{})
	if err != nil {
		return err
	}
	fmt.Printf("transactions: %d\n", len(txs))
	return nil
}

// mintBalanceLines sums a mint's unspent proofs per currency unit, one output
// line per unit so mixed-unit mints are never reported under a single unit.
func mintBalanceLines(url wallet.MintURL, proofs []wallet.ProofInfo) []string {
	balances := make(map[wallet.CurrencyUnit]uint64)
	for i := range proofs {
		balances[proofs[i].Unit] += proofs[i].Proof.Amount
	}
	if len(balances) == 0 {
		return []string{fmt.Sprintf("mint %s: no unspent proofs", url)}
	}

	units := make([]wallet.CurrencyUnit, 0, len(balances))
	for unit := range balances {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })

	lines := make([]string, 0, len(units))
	for _, unit := range units {
		lines = append(lines, fmt.Sprintf("mint %s: %d unspent %s", url, balances[unit], unit))
	}
	return lines
}

// runReset wipes both stores and the identity.
func runReset(mgr *session.Manager) error {
	if err := mgr.Clear(); err != nil {
		return err
	}
	return mgr.ClearIdentity()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
