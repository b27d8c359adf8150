package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Prints the balance-update audit log written by a JSONFileRecorder",
}

func init() {
	logPath := balancesCmd.Flags().StringP("log", "l", "", "(required) path to the JSONFileRecorder audit log")
	requiredFlag(balancesCmd, "log")

	balancesCmd.Run = func(ccmd *cobra.Command, args []string) {
		f, e := os.Open(*logPath)
		if e != nil {
			log.Fatal(e)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		count := 0
		for scanner.Scan() {
			fmt.Println(scanner.Text())
			count++
		}
		if e := scanner.Err(); e != nil {
			log.Fatal(e)
		}
		log.Printf("printed %d record(s) from %s\n", count, *logPath)
	}
}
