package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/wagate/internal/server"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the gateway",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		grpcAddr, _ := cmd.Flags().GetString("grpc")
		tenant, _ := cmd.Flags().GetString("tenant")
		if grpcAddr != "" {
			return checkGRPCHealth(cmd.Context(), grpcAddr, tenant)
		}

		status, err := gatewayClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

// checkGRPCHealth queries the gRPC health service: the whole server, or one
// tenant's session when tenant is set.
func checkGRPCHealth(ctx context.Context, addr, tenant string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if authToken != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(bearerTokenInterceptor(authToken)))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req := &healthpb.HealthCheckRequest{}
	if tenant != "" {
		req.Service = server.HealthService(tenant)
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, req)
	if err != nil {
		return fmt.Errorf("checking health: %w", err)
	}

	if jsonOutput {
		data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("Health: %s\n", resp.GetStatus())
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("unhealthy: %s", resp.GetStatus())
	}
	return nil
}

// bearerTokenInterceptor attaches a Bearer token to every outgoing call.
func bearerTokenInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func init() {
	healthCmd.Flags().String("grpc", "", "query the gRPC health service at this address instead of HTTP")
	healthCmd.Flags().String("tenant", "", "with --grpc, check one tenant's session")
}
