package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lockyard/config"
	"lockyard/core/events"
	"lockyard/crypto"
	"lockyard/explorer"
	"lockyard/native/lockup"
	"lockyard/native/token"
	"lockyard/observability"
	"lockyard/observability/logging"
	"lockyard/rpc"
	"lockyard/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var fileOpts *logging.FileOptions
	if strings.TrimSpace(cfg.LogFile) != "" {
		fileOpts = &logging.FileOptions{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		}
	}
	logger := logging.Setup("lockyardd", os.Getenv("LOCKYARD_ENV"), fileOpts)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("failed to open ledger database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	state := storage.NewLedgerState(db)

	deployedAt, err := state.DeployedAt(uint64(time.Now().Unix()))
	if err != nil {
		logger.Error("failed to resolve program start", "err", err)
		os.Exit(1)
	}

	emitters := events.Fanout{observability.NewEventLogger(logger)}
	if strings.TrimSpace(cfg.ExplorerDB) != "" {
		index, err := explorer.Open(cfg.ExplorerDB, logger)
		if err != nil {
			logger.Error("failed to open event index", "err", err)
			os.Exit(1)
		}
		defer index.Close()
		emitters = append(emitters, index)
	}

	admin := cfg.AdminAddress()
	tokens := make(map[string]*token.Ledger, len(cfg.Tokens))
	for _, tc := range cfg.Tokens {
		ledger := token.NewLedger(tc.Symbol, admin)
		ledger.SetState(state)
		ledger.SetEmitter(emitters)
		tokens[ledger.Symbol()] = ledger
	}
	rewardSymbol := strings.ToUpper(strings.TrimSpace(cfg.Program.RewardToken))
	rewardLedger := tokens[rewardSymbol]

	params := lockup.Params{
		ProgramEnd:      deployedAt + cfg.Program.DurationSeconds,
		RewardPoolSize:  cfg.RewardPool(),
		AnnualYieldRate: cfg.Program.AnnualYieldRate,
		VestingDuration: cfg.Program.VestingSeconds,
		Admin:           admin,
	}
	engine, err := lockup.NewEngine(custodyAddress(), rewardLedger, params)
	if err != nil {
		logger.Error("failed to construct lockup engine", "err", err)
		os.Exit(1)
	}
	engine.SetState(state)
	engine.SetEmitter(emitters)

	if symbol, funded, err := state.LockupDepositToken(); err != nil {
		logger.Error("failed to read deposit asset wiring", "err", err)
		os.Exit(1)
	} else if funded {
		deposit, ok := tokens[symbol]
		if !ok {
			logger.Error("persisted deposit asset is not configured", "token", symbol)
			os.Exit(1)
		}
		engine.SetDepositToken(deposit)
		logger.Info("restored deposit asset wiring", "token", symbol)
	}

	logger.Info("program clock",
		"deployedAt", deployedAt,
		"programEnd", params.ProgramEnd,
		"vestingDuration", params.VestingDuration,
		"network", cfg.NetworkName,
	)

	server := rpc.NewServer(engine, tokens, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", "err", err)
		os.Exit(1)
	}
}

// custodyAddress derives the deterministic module account holding deposits and
// the reward pool.
func custodyAddress() crypto.Address {
	digest := ethcrypto.Keccak256([]byte("lockyard/lockup/custody"))
	return crypto.NewAddress(crypto.AccountPrefix, digest[12:])
}
