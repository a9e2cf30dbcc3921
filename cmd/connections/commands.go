package main

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-connections/command"
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/query"
	"github.com/spf13/cobra"
)

func newAddCommand(a *app) *cobra.Command {
	var (
		data       core.ConnectionData
		display    string
		profileURL string
		imageURL   string
		token      string
		secret     string
		refresh    string
		expireTime int64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a connection for the local user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			data.ProviderID = strings.ToLower(strings.TrimSpace(data.ProviderID))
			data.DisplayName = optional(display)
			data.ProfileURL = optional(profileURL)
			data.ImageURL = optional(imageURL)
			data.AccessToken = optional(token)
			data.Secret = optional(secret)
			data.RefreshToken = optional(refresh)
			if cmd.Flags().Changed("expire-time") {
				data.ExpireTime = core.Int64Ptr(expireTime)
			}

			factory, err := a.locator.FactoryFor(data.ProviderID)
			if err != nil {
				return err
			}
			connection, err := factory.CreateConnection(data)
			if err != nil {
				return err
			}
			err = command.NewAddConnectionCommand(a.service).Execute(cmd.Context(), command.AddConnectionMessage{
				UserID:     userID,
				Connection: connection,
			})
			if err != nil {
				return err
			}
			a.logger.Info("connection added", "user_id", userID, "connection", connection.Key().String())
			return printConnections(cmd.OutOrStdout(), a.output, []core.Connection{connection})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&data.ProviderID, "provider", "", "provider id")
	flags.StringVar(&data.ProviderUserID, "provider-user-id", "", "provider user id")
	flags.StringVar(&display, "display-name", "", "display name")
	flags.StringVar(&profileURL, "profile-url", "", "profile url")
	flags.StringVar(&imageURL, "image-url", "", "image url")
	flags.StringVar(&token, "access-token", "", "access token")
	flags.StringVar(&secret, "secret", "", "token secret")
	flags.StringVar(&refresh, "refresh-token", "", "refresh token")
	flags.Int64Var(&expireTime, "expire-time", 0, "access token expiry, epoch milliseconds")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("provider-user-id")
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the local user's connections, optionally for one provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			if providerID != "" {
				connections, err := query.NewFindConnectionsQuery(a.service).Query(cmd.Context(), query.FindConnectionsMessage{
					UserID:     userID,
					ProviderID: providerID,
				})
				if err != nil {
					return err
				}
				return printConnections(cmd.OutOrStdout(), a.output, connections)
			}

			grouped, err := query.NewFindAllConnectionsQuery(a.service).Query(cmd.Context(), query.FindAllConnectionsMessage{
				UserID: userID,
			})
			if err != nil {
				return err
			}
			var connections []core.Connection
			for _, id := range a.locator.RegisteredProviderIDs() {
				connections = append(connections, grouped[id]...)
			}
			return printConnections(cmd.OutOrStdout(), a.output, connections)
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	return cmd
}

func newPrimaryCommand(a *app) *cobra.Command {
	var (
		providerID string
		capability string
	)
	cmd := &cobra.Command{
		Use:   "primary",
		Short: "Show the primary connection for a provider or capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			result, err := query.NewFindPrimaryConnectionQuery(a.service).Query(cmd.Context(), query.FindPrimaryConnectionMessage{
				UserID:     userID,
				ProviderID: providerID,
				Capability: core.Capability(capability),
			})
			if err != nil {
				return err
			}
			if !result.Found {
				return fmt.Errorf("no primary connection for user %q", userID)
			}
			return printConnections(cmd.OutOrStdout(), a.output, []core.Connection{result.Connection})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	cmd.Flags().StringVar(&capability, "capability", "", "capability tag, e.g. github.api")
	cmd.MarkFlagsMutuallyExclusive("provider", "capability")
	return cmd
}

func newOwnersCommand(a *app) *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "owners PROVIDER_USER_ID...",
		Short: "List local users connected to the given provider users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userIDs, err := query.NewFindUserIDsConnectedToQuery(a.service).Query(cmd.Context(), query.FindUserIDsConnectedToMessage{
				ProviderID:      providerID,
				ProviderUserIDs: args,
			})
			if err != nil {
				return err
			}
			return printStrings(cmd.OutOrStdout(), a.output, userIDs)
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func newRemoveCommand(a *app) *cobra.Command {
	var key core.ConnectionKey
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove one connection of the local user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			err = command.NewRemoveConnectionCommand(a.service).Execute(cmd.Context(), command.RemoveConnectionMessage{
				UserID: userID,
				Key:    key,
			})
			if err != nil {
				return err
			}
			a.logger.Info("connection removed", "user_id", userID, "connection", key.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&key.ProviderID, "provider", "", "provider id")
	cmd.Flags().StringVar(&key.ProviderUserID, "provider-user-id", "", "provider user id")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("provider-user-id")
	return cmd
}

func newRemoveAllCommand(a *app) *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "remove-all",
		Short: "Remove every connection of the local user to a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			err = command.NewRemoveConnectionsCommand(a.service).Execute(cmd.Context(), command.RemoveConnectionsMessage{
				UserID:     userID,
				ProviderID: providerID,
			})
			if err != nil {
				return err
			}
			a.logger.Info("connections removed", "user_id", userID, "provider_id", providerID)
			return nil
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return core.StringPtr(value)
}
