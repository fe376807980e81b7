package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/daimatz/jvmsandbox/pkg/sandbox"
)

func init() {
	for _, c := range []*cobra.Command{invokeCmd, fieldCmd, clinitCmd} {
		c.Flags().String("frames", "", "JSON list of frames Thread.getStackTrace reports during the call")
	}
	for _, c := range []*cobra.Command{invokeCmd, clinitCmd} {
		c.Flags().Int64("max-iterations", 0, "instruction ceiling for this call (0 keeps the configured one)")
		c.Flags().StringSlice("allow", nil, "classes whose static initializers may run besides the target")
	}
	fieldCmd.Flags().String("desc", "", "field descriptor, needed when several fields share the name")
}

func frames(cmd *cobra.Command) ([]sandbox.StackFrame, error) {
	raw, _ := cmd.Flags().GetString("frames")
	v, err := parseJSON("--frames", raw)
	if err != nil {
		return nil, err
	}
	return sandbox.ParseStackFrames(v)
}

// allowList returns nil when --allow was not given, which lets every
// initializer run.
func allowList(cmd *cobra.Command) []string {
	if !cmd.Flags().Changed("allow") {
		return nil
	}
	allow, _ := cmd.Flags().GetStringSlice("allow")
	if allow == nil {
		allow = []string{}
	}
	return allow
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <class> <method> <descriptor> [args]",
	Short: "Invoke a static method",
	Example: heredoc.Doc(`
		# add two ints
		❯ jvmsandbox invoke -w app.jar com.example.Calc add '(II)I' '[2, 3]'
		# pretend the call comes from somewhere else
		❯ jvmsandbox invoke -w app.jar com.example.Caller callerName '()Ljava/lang/String;' \
			--frames '[{"className":"com.example.Main","methodName":"main"}]'`),
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &sandbox.InvokeRequest{
			ClassName:           args[0],
			MethodName:          args[1],
			MethodDescriptor:    args[2],
			AllowTransitiveInit: allowList(cmd),
		}
		req.MaxIterations, _ = cmd.Flags().GetInt64("max-iterations")
		if len(args) == 4 {
			v, err := parseJSON("args", args[3])
			if err != nil {
				return err
			}
			list, ok := v.([]any)
			if !ok && v != nil {
				return errors.Errorf("args must be a JSON list, got %s", args[3])
			}
			req.Args = list
		}
		var err error
		if req.StackTraceOverride, err = frames(cmd); err != nil {
			return report(nil, err)
		}

		h, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer h.Close()
		return report(h.provider.InvokeStaticMethod(req))
	},
}

var fieldCmd = &cobra.Command{
	Use:   "field <class> <name>",
	Short: "Read a static field",
	Example: heredoc.Doc(`
		❯ jvmsandbox field -w app.jar com.example.Config VERSION
		❯ jvmsandbox field -w app.jar com.example.Config dup --desc J`),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &sandbox.FieldRequest{ClassName: args[0], FieldName: args[1]}
		req.FieldDescriptor, _ = cmd.Flags().GetString("desc")
		var err error
		if req.StackTraceOverride, err = frames(cmd); err != nil {
			return report(nil, err)
		}

		h, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer h.Close()
		return report(h.provider.ReadStaticField(req))
	},
}

var clinitCmd = &cobra.Command{
	Use:   "clinit <class>",
	Short: "Run a class's static initializer",
	Example: heredoc.Doc(`
		# run A's initializer, and B's if A needs it, but defer everything else
		❯ jvmsandbox clinit -w app.jar com.example.A --allow com.example.B`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &sandbox.ClinitRequest{ClassName: args[0], AllowTransitiveInit: allowList(cmd)}
		req.MaxIterations, _ = cmd.Flags().GetInt64("max-iterations")
		var err error
		if req.StackTraceOverride, err = frames(cmd); err != nil {
			return report(nil, err)
		}

		h, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer h.Close()
		return report(h.provider.RunStaticInitializer(req))
	},
}
