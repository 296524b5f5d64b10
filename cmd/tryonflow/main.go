// tryonflow 从命令行执行一次完整的试穿工作流，
// 参数与 MCP 工具 run_tryon_workflow 一致。
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"tryon-mcp/common"
	"tryon-mcp/internal/oss"
	"tryon-mcp/internal/workflow"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		garmentURI  string
		modelPrompt string
		category    string
		outputURI   string
		configPath  string
	)

	cmd := &cobra.Command{
		Use:           "tryonflow",
		Short:         "Run the try-on workflow once",
		Long:          "Pull a garment image from S3, generate a model from a prompt, generate a mask and a try-on image, then upload the result to S3.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 命令行指定的 YAML 端点文件优先于环境变量
			if configPath != "" {
				os.Setenv("TRYON_CONFIG_PATH", configPath)
			}

			cfg, err := common.LoadConfig()
			if err != nil {
				return err
			}

			ossClient, err := oss.NewOSSClientFromConfig(cfg)
			if err != nil {
				return err
			}

			flow := workflow.NewFlow(cfg, ossClient)

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " running try-on workflow..."
			sp.Start()

			resultURI, err := flow.Run(context.Background(), workflow.Params{
				GarmentURI:  garmentURI,
				ModelPrompt: modelPrompt,
				Category:    category,
				OutputURI:   outputURI,
			})
			sp.Stop()
			if err != nil {
				return err
			}

			fmt.Printf("Try-on result uploaded to: %s\n", resultURI)
			return nil
		},
	}

	cmd.Flags().StringVarP(&garmentURI, "garment-uri", "g", "", "S3 URI of the garment image")
	cmd.Flags().StringVarP(&modelPrompt, "model-prompt", "m", "", "text prompt describing the model")
	cmd.Flags().StringVarP(&category, "category", "t", "", "garment category")
	cmd.Flags().StringVarP(&outputURI, "output-uri", "o", "", "S3 URI for the try-on result")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML endpoints file")

	cmd.MarkFlagRequired("garment-uri")
	cmd.MarkFlagRequired("model-prompt")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("output-uri")

	return cmd
}
