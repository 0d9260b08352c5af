package main

import (
	"fmt"
	"log"

	"github.com/dushixiang/strike/internal"
	"github.com/dushixiang/strike/pkg/nostd"
	"github.com/spf13/cobra"
)

var (
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "strike",
	Short: "Strike - 美股期权AI交易系统",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		return internal.Run(configFile)
	},
}

// tokenCmd 生成 API 令牌，哈希写入 app.api.token_hash
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "生成 API 写接口令牌",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, hash, err := nostd.NewAPIToken()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token:      %s\ntoken_hash: %s\n", token, hash)
		return nil
	},
}

func init() {
	// 全局配置文件标志
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "配置文件路径")
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
