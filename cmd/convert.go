package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var convertUserID string

var convertCmd = &cobra.Command{
	Use:   "convert <bid-card-id>",
	Short: "Promote a ready bid card into an official bid card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		svc, err := initService(st)
		if err != nil {
			return err
		}
		res, err := svc.Convert(cmd.Context(), args[0], convertUserID)
		if err != nil {
			return err
		}

		zap.L().Info("conversion complete",
			zap.String("official_bid_card_id", res.Official.ID),
			zap.String("bid_number", res.Official.BidNumber),
			zap.Bool("already_converted", res.AlreadyConverted),
		)
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertUserID, "user", "", "converting user id (required)")
	convertCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(convertCmd)
}
