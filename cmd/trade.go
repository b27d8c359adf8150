package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stellar/go/support/config"
	"github.com/stellar/kelp/api"
	"github.com/stellar/kelp/internal/balance"
	"github.com/stellar/kelp/model"
	"github.com/stellar/kelp/plugins"
	"github.com/stellar/kelp/trader"
)

const tradeExamples = `  kelp trade --botConf ./path/trader.cfg
  kelp trade --botConf ./path/trader.cfg --sim`

var tradeCmd = &cobra.Command{
	Use:     "trade",
	Short:   "Runs the balance-managed trading bot against a single trading pair",
	Example: tradeExamples,
}

func requiredFlag(cmd *cobra.Command, flag string) {
	if e := cmd.MarkFlagRequired(flag); e != nil {
		panic(e)
	}
}

func init() {
	botConfigPath := tradeCmd.Flags().StringP("botConf", "c", "", "(required) trading bot's basic config file path")
	offsetTrades := tradeCmd.Flags().Bool("offsetTrades", false, "accepted but not wired: logs a notice and runs without a backing-exchange offset handler")
	simMode := tradeCmd.Flags().Bool("sim", false, "simulate the bot's actions without placing any trades")
	logPrefix := tradeCmd.Flags().StringP("log", "l", "", "log to a file (and stdout) with this prefix for the filename")

	requiredFlag(tradeCmd, "botConf")
	tradeCmd.Flags().SortFlags = false

	tradeCmd.Run = func(ccmd *cobra.Command, args []string) {
		var botConfig trader.BotConfig
		if e := config.Read(*botConfigPath, &botConfig); e != nil {
			log.Println()
			log.Fatal(e)
		}

		if *logPrefix != "" {
			t := time.Now().Format("20060102T150405MST")
			fileName := fmt.Sprintf("%s_%s_%s_%s.log", *logPrefix, botConfig.ExchangeCode, botConfig.AssetCodeBase, botConfig.AssetCodeQuote)
			if e := setLogFile(fileName); e != nil {
				log.Println()
				log.Fatal(e)
				return
			}
			log.Printf("logging to file: %s\n", fileName)
		}

		startupMessage := "Starting Kelp Trader: " + version + " [" + gitHash + "]"
		if *simMode {
			startupMessage += " (simulation mode)"
		}
		log.Println(startupMessage)

		pair := model.TradingPair{
			Base:  model.CurrencyCode(botConfig.AssetCodeBase),
			Quote: model.CurrencyCode(botConfig.AssetCodeQuote),
		}
		account := balance.ExchangeAccountId{ExchangeCode: botConfig.ExchangeCode, AccountIndex: botConfig.AccountIndex}
		descriptor := balance.ConfigurationDescriptor{ServiceName: botConfig.ServiceName, ServiceConfigKey: botConfig.ServiceConfigKey}

		priceTick := decimal.NewFromFloat(botConfig.PriceTick)
		amountTick := decimal.NewFromFloat(botConfig.AmountTick)
		symbols := balance.NewStaticSymbolSource()
		symbols.Register(account, balance.MakeSpotSymbol(pair, priceTick, amountTick))

		manager := balance.NewManager(symbols, balance.NopRecorder{}, balance.WallClock{})

		var fillHandlers []api.FillHandler
		if *offsetTrades {
			log.Println("offsetTrades is not wired to a config file yet; running without a backing-exchange offset handler")
		}
		strat := trader.MakePassthroughStrategy(fillHandlers)

		var referenceFeed api.PriceFeed
		if botConfig.ReferenceExchangeType != "" {
			referenceExchange, e := plugins.MakeExchange(botConfig.ReferenceExchangeType, []api.ExchangeAPIKey{{}}, *simMode)
			if e != nil {
				log.Println()
				log.Fatal(e)
			}
			referenceFeed = plugins.NewReferencePriceFeed(botConfig.ReferenceExchangeType, referenceExchange, pair, botConfig.ReferencePriceModifier)
		}

		bot := trader.MakeBot(strat, manager, account, descriptor, pair, botConfig.TickIntervalSeconds, referenceFeed)
		SetServerManager(manager)

		log.Println("Starting the trader bot...")
		bot.Start()
	}
}

func setLogFile(fileName string) error {
	f, e := os.OpenFile(fileName, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if e != nil {
		return fmt.Errorf("failed to set log file: %s", e)
	}
	mw := io.MultiWriter(os.Stdout, f)
	log.SetOutput(mw)
	return nil
}
