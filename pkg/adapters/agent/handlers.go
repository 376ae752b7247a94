package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/workflow"
)

// Element names served by this package.
const (
	TagSendCommand     = "send-command"
	TagPrepareUserData = "prepare-user-data"
)

// Template locations used by prepare-user-data.
const (
	UserDataChannel    = "userdata"
	UserDataScript     = "init"
	AgentConfigChannel = "agent-config"
	DefaultAgentConfig = "Default"
)

// BrokerSettings are the coordinates written into an agent's configuration.
type BrokerSettings struct {
	Host     string
	User     string
	Password string
	VHost    string
}

// UserData renders instance bootstrap scripts.
type UserData struct {
	Templates ports.TemplateStore
	Broker    BrokerSettings
}

// Register adds send-command, and prepare-user-data when userData is not nil, to reg.
func Register(reg *engine.Registry, userData *UserData) error {
	if err := reg.Register(TagSendCommand, sendCommandFunc); err != nil {
		return err
	}
	if userData == nil {
		return nil
	}
	return reg.Register(TagPrepareUserData, userData.handle)
}

type sendArgs struct {
	Template string         `arg:"template"`
	Service  string         `arg:"service"`
	Unit     string         `arg:"unit"`
	Mappings map[string]any `arg:"mappings"`
	Result   string         `arg:"result"`
}

func sendCommandFunc(call *engine.Call) (any, error) {
	var args sendArgs
	if err := call.Args.Decode(&args); err != nil {
		return nil, fmt.Errorf("%s: %w", TagSendCommand, err)
	}
	d, err := dispatch.From(call.Context)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		PayloadTemplate: args.Template,
		PayloadService:  args.Service,
		PayloadUnit:     args.Unit,
		PayloadMappings: args.Mappings,
	}
	_, err = d.Execute(ChannelName, CommandSend, payload, dispatch.OnSuccess(call, args.Result))
	return nil, err
}

type userDataArgs struct {
	Hostname string `arg:"hostname"`
	Service  string `arg:"service"`
	Unit     string `arg:"unit"`
	Template string `arg:"template"`
}

// Render returns the bootstrap script for one unit of stack.
func (u *UserData) Render(ctx context.Context, stack, hostname, service, unit, template string) (string, error) {
	if template == "" {
		template = DefaultAgentConfig
	}
	script, err := u.Templates.Text(ctx, UserDataChannel, UserDataScript)
	if err != nil {
		return "", err
	}
	config, err := u.Templates.Text(ctx, AgentConfigChannel, template)
	if err != nil {
		return "", err
	}

	config = strings.NewReplacer(
		"%BROKER_HOST%", u.Broker.Host,
		"%BROKER_USER%", u.Broker.User,
		"%BROKER_PASSWORD%", u.Broker.Password,
		"%BROKER_VHOST%", u.Broker.VHost,
		"%INPUT_QUEUE%", InputQueue(stack, service, unit),
		"%RESULT_QUEUE%", ResultQueue(stack),
	).Replace(config)

	return strings.NewReplacer(
		"%AGENT_CONFIG_BASE64%", base64.StdEncoding.EncodeToString([]byte(config)),
		"%INTERNAL_HOSTNAME%", hostname,
	).Replace(script), nil
}

func (u *UserData) handle(call *engine.Call) (any, error) {
	var args userDataArgs
	if err := call.Args.Decode(&args); err != nil {
		return nil, fmt.Errorf("%s: %w", TagPrepareUserData, err)
	}
	stack := ""
	if data, ok := workflow.DataSource(call.Context).(map[string]any); ok {
		stack = domain.Stringify(data["name"])
	}
	return u.Render(context.Background(), stack, args.Hostname, args.Service, args.Unit, args.Template)
}
