package cmd

func init() {
	RegisterCommand(&Command{
		Name:  "version",
		Short: "Show version information",
		Long:  `Print the pulse CLI version and build time.`,
		Usage: "pulse version",
		Run: func(env *Env, _ []string) error {
			printVersion(env.Out)
			return nil
		},
	})
}
