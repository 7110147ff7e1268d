package inproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juancams/behaviorfleets/types"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "mission/poll")
	require.NoError(t, err)

	msg := types.NewPoll("proxy-1", "", "patrol")
	require.NoError(t, b.Publish(ctx, "mission/poll", msg))

	got := <-sub.C()
	assert.Equal(t, types.KindCommand, got.Kind)
	assert.Equal(t, "patrol", got.MissionID)
}

func TestBus_ManyToMany(t *testing.T) {
	b := New()
	defer b.Close()

	ctx := context.Background()

	subA, err := b.Subscribe(ctx, "mission/poll")
	require.NoError(t, err)
	subB, err := b.Subscribe(ctx, "mission/poll")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "mission/robot-x/status")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "mission/poll", types.NewPoll("proxy-1", "", "patrol")))

	assert.Equal(t, "patrol", (<-subA.C()).MissionID)
	assert.Equal(t, "patrol", (<-subB.C()).MissionID)
	assert.Empty(t, other.C())
}

func TestBus_DeliversClones(t *testing.T) {
	b := New()
	defer b.Close()

	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "mission/robot-a/command")
	require.NoError(t, err)

	msg := types.NewAssignment("proxy-1", "robot-a", "patrol", types.TaskDefinition{
		Tree:    "{}",
		Plugins: []string{"move_to"},
	})
	require.NoError(t, b.Publish(ctx, "mission/robot-a/command", msg))

	got := <-sub.C()
	got.Task.Plugins[0] = "mutated"
	assert.Equal(t, "move_to", msg.Task.Plugins[0])
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "mission/poll")
	require.NoError(t, err)
	sub.Unsubscribe()

	// Channel is closed after Unsubscribe.
	_, ok := <-sub.C()
	assert.False(t, ok)

	// Publishing to a channel with no subscribers is not an error.
	require.NoError(t, b.Publish(ctx, "mission/poll", types.NewPoll("proxy-1", "", "patrol")))
}

func TestBus_FullMailboxDrops(t *testing.T) {
	b := New(WithMailboxSize(1))
	defer b.Close()

	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "mission/poll")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "mission/poll", types.NewPoll("proxy-1", "", "first")))
	require.NoError(t, b.Publish(ctx, "mission/poll", types.NewPoll("proxy-1", "", "second")))

	assert.Equal(t, "first", (<-sub.C()).MissionID)
	assert.Empty(t, sub.C())
}

func TestBus_Closed(t *testing.T) {
	b := New()

	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "mission/poll")
	require.NoError(t, err)

	require.NoError(t, b.Close())

	_, ok := <-sub.C()
	assert.False(t, ok)

	err = b.Publish(ctx, "mission/poll", types.NewPoll("proxy-1", "", "patrol"))
	assert.True(t, types.IsCode(err, types.ErrBusClosed))

	_, err = b.Subscribe(ctx, "mission/poll")
	assert.True(t, types.IsCode(err, types.ErrBusClosed))
}
