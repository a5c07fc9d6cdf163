package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justyntemme/gainlink/pkg/gainstage"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest an RMS target for a source",
	Long: `Print the RMS target a coordinator would suggest for a source type in
a genre at a stage of the production. Names are matched ignoring case and
punctuation, so "hip hop", "HipHop" and "hip-hop" are the same genre.`,
	Example: `  gainlink suggest --source kick --genre trap
  gainlink suggest --source "lead vocal" --situation mastering
  gainlink suggest --list`,
	Args: cobra.NoArgs,
	RunE: runSuggest,
}

func init() {
	flags := suggestCmd.Flags()
	flags.String("source", gainstage.SourceLeadVocal.String(), "source type")
	flags.String("genre", gainstage.GenrePop.String(), "genre")
	flags.String("situation", gainstage.SituationMixing.String(), "production stage")
	flags.Bool("list", false, "list the known names and exit")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	flags := cmd.Flags()

	if list, _ := flags.GetBool("list"); list {
		fmt.Fprintf(out, "%s %s\n", keyStyle.Render("Sources:"), strings.Join(gainstage.SourceNames, ", "))
		fmt.Fprintf(out, "%s %s\n", keyStyle.Render("Genres:"), strings.Join(gainstage.GenreNames, ", "))
		fmt.Fprintf(out, "%s %s\n", keyStyle.Render("Situations:"), strings.Join(gainstage.SituationNames, ", "))
		return nil
	}

	name, _ := flags.GetString("source")
	src, err := gainstage.ParseSourceType(name)
	if err != nil {
		return err
	}
	name, _ = flags.GetString("genre")
	genre, err := gainstage.ParseGenre(name)
	if err != nil {
		return err
	}
	name, _ = flags.GetString("situation")
	sit, err := gainstage.ParseSituation(name)
	if err != nil {
		return err
	}

	target := gainstage.SuggestTarget(src, genre, sit)
	fmt.Fprintf(out, "%s %s\n", keyStyle.Render(fmt.Sprintf("%s / %s / %s:", src, genre, sit)),
		valueStyle.Render(fmt.Sprintf("%.1f dB RMS", target)))
	return nil
}
