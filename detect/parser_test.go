package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommands(t *testing.T) {
	text := `Sure! Based on the conversation she put on a hat.
outfit-system_wear_headwear("red beret")
and also outfit-system_remove_footwear("")`

	cmds, failures := ParseCommands(text)
	require.Len(t, cmds, 2)
	assert.Empty(t, failures)
	assert.Equal(t, Command{Action: ActionWear, SlotID: "headwear", Value: "red beret"}, cmds[0])
	assert.Equal(t, Command{Action: ActionRemove, SlotID: "footwear", Value: ""}, cmds[1])
}

func TestParseCommandsChange(t *testing.T) {
	cmds, failures := ParseCommands(`outfit-system_change_topwear("blue kimono")`)
	require.Len(t, cmds, 1)
	assert.Empty(t, failures)
	assert.Equal(t, ActionChange, cmds[0].Action)
	assert.Equal(t, "blue kimono", cmds[0].Value)
}

func TestParseCommandsUnknownAction(t *testing.T) {
	cmds, failures := ParseCommands(`outfit-system_burn_headwear("hat")`)
	assert.Empty(t, cmds)
	require.Len(t, failures, 1)
	assert.Equal(t, `outfit-system_burn_headwear("hat")`, failures[0].Raw)
	assert.Contains(t, failures[0].Reason, "burn")
}

func TestParseCommandsIgnoresPlainText(t *testing.T) {
	cmds, failures := ParseCommands("She did not change anything this turn.")
	assert.Empty(t, cmds)
	assert.Empty(t, failures)
}

func TestParseCommandsSlotIDCharset(t *testing.T) {
	cmds, _ := ParseCommands(`outfit-system_wear_head-accessory("silver hairpin")`)
	require.Len(t, cmds, 1)
	assert.Equal(t, "head-accessory", cmds[0].SlotID)
}
