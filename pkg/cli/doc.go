/*
Package cli holds helpers shared by the filegate commands: output
formatters, exit codes, a progress reporter for bulk ingest and signal
handling.

Output is selected with --output:

	f, err := cli.NewFormatter(cli.OutputFormat(flags.output))
	if err != nil {
		return err
	}
	return f.FormatTo(cmd.OutOrStdout(), resp)

Values implementing TextWriter render themselves in text mode; anything
else is printed with %v.

`filegate decide` maps the outcome onto the process exit code so shell
scripts can branch on it without parsing output; see OutcomeExitCode.
*/
package cli
