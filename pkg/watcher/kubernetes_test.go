package watcher_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/emortalmc/live-config-parser/pkg/watcher"
)

type event struct {
	Op       string
	FileName string
	Contents string
}

type fakeConsumer struct {
	mu     sync.Mutex
	events []event
}

func (c *fakeConsumer) OnConfigCreate(fileName, contents string) {
	c.add(event{Op: "create", FileName: fileName, Contents: contents})
}

func (c *fakeConsumer) OnConfigModify(fileName, contents string) {
	c.add(event{Op: "modify", FileName: fileName, Contents: contents})
}

func (c *fakeConsumer) OnConfigDelete(fileName string) {
	c.add(event{Op: "delete", FileName: fileName})
}

func (c *fakeConsumer) add(e event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *fakeConsumer) Events() []event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event(nil), c.events...)
}

func configMap(name string, data map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "emortalmc",
		},
		Data: data,
	}
}

// watchStarted makes the fake clientset signal once the informer's watch is established,
// so changes made by a test are not lost between list and watch.
func watchStarted(clientset *fake.Clientset) <-chan struct{} {
	started := make(chan struct{})
	var once sync.Once
	clientset.PrependWatchReactor("configmaps", func(action k8stesting.Action) (bool, watch.Interface, error) {
		w, err := clientset.Tracker().Watch(action.GetResource(), action.GetNamespace())
		if err != nil {
			return false, nil, err
		}
		once.Do(func() { close(started) })
		return true, w, nil
	})
	return started
}

var _ = Describe("KubernetesWatcher", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		clientset *fake.Clientset
		consumer  *fakeConsumer
		started   <-chan struct{}
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		clientset = fake.NewSimpleClientset(
			configMap("gamemodes", map[string]string{
				"lobby.json":      `{"id":"lobby"}`,
				"block_sumo.json": `{"id":"block_sumo"}`,
			}),
			configMap("unrelated", map[string]string{"other.json": `{"id":"other"}`}),
		)
		started = watchStarted(clientset)
		consumer = &fakeConsumer{}
	})

	AfterEach(func() {
		cancel()
	})

	It("should deliver the initial ConfigMap data before Start returns", func() {
		w := watcher.NewKubernetesWatcher(clientset, "emortalmc", "gamemodes", consumer)
		Expect(w.Start(ctx)).To(Succeed())
		defer w.Close()

		Expect(consumer.Events()).To(ConsistOf(
			event{Op: "create", FileName: "block_sumo.json", Contents: `{"id":"block_sumo"}`},
			event{Op: "create", FileName: "lobby.json", Contents: `{"id":"lobby"}`},
		))
	})

	It("should diff ConfigMap updates into create, modify and delete events", func() {
		w := watcher.NewKubernetesWatcher(clientset, "emortalmc", "gamemodes", consumer)
		Expect(w.Start(ctx)).To(Succeed())
		defer w.Close()
		Eventually(started).Should(BeClosed())

		_, err := clientset.CoreV1().ConfigMaps("emortalmc").Update(ctx, configMap("gamemodes", map[string]string{
			"lobby.json":         `{"id":"lobby","priority":1}`,
			"tower_defence.json": `{"id":"tower_defence"}`,
		}), metav1.UpdateOptions{})
		Expect(err).NotTo(HaveOccurred())

		Eventually(consumer.Events).Should(ContainElements(
			event{Op: "modify", FileName: "lobby.json", Contents: `{"id":"lobby","priority":1}`},
			event{Op: "create", FileName: "tower_defence.json", Contents: `{"id":"tower_defence"}`},
			event{Op: "delete", FileName: "block_sumo.json"},
		))
	})

	It("should ignore other ConfigMaps", func() {
		w := watcher.NewKubernetesWatcher(clientset, "emortalmc", "gamemodes", consumer)
		Expect(w.Start(ctx)).To(Succeed())
		defer w.Close()
		Eventually(started).Should(BeClosed())

		_, err := clientset.CoreV1().ConfigMaps("emortalmc").Update(ctx, configMap("unrelated", map[string]string{
			"other.json": `{"id":"changed"}`,
		}), metav1.UpdateOptions{})
		Expect(err).NotTo(HaveOccurred())

		Consistently(consumer.Events, 200*time.Millisecond).Should(HaveLen(2))
	})

	It("should delete every config when the ConfigMap is deleted", func() {
		w := watcher.NewKubernetesWatcher(clientset, "emortalmc", "gamemodes", consumer)
		Expect(w.Start(ctx)).To(Succeed())
		defer w.Close()
		Eventually(started).Should(BeClosed())

		Expect(clientset.CoreV1().ConfigMaps("emortalmc").Delete(ctx, "gamemodes", metav1.DeleteOptions{})).To(Succeed())

		Eventually(consumer.Events).Should(ContainElements(
			event{Op: "delete", FileName: "lobby.json"},
			event{Op: "delete", FileName: "block_sumo.json"},
		))
	})

	It("should time out when the ConfigMap cannot be listed", func() {
		clientset.PrependReactor("list", "configmaps", func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("apiserver unavailable")
		})

		w := watcher.NewKubernetesWatcher(clientset, "emortalmc", "gamemodes", consumer,
			watcher.WithSyncTimeout(200*time.Millisecond))
		err := w.Start(ctx)
		Expect(err).To(MatchError(watcher.ErrInitialSyncTimeout))
		Expect(w.Close()).To(Succeed())
	})
})
