package board

// Category names a page of tiles on the board.
type Category string

const (
	CategoryRoot     Category = "ROOT"
	CategoryDo       Category = "DO"
	CategoryEat      Category = "EAT"
	CategoryGo       Category = "GO"
	CategoryTell     Category = "TELL"
	CategoryMight    Category = "MIGHT"
	CategoryThings   Category = "THINGS"
	CategoryTool     Category = "TOOL"
	CategoryMaterial Category = "MATERIAL"
	CategoryIsBe     Category = "IS_BE"
	CategoryLook     Category = "LOOK"
	CategoryWear     Category = "WEAR"
	CategoryBody     Category = "BODY"
	CategoryTouch    Category = "TOUCH"
	CategoryPeople   Category = "PEOPLE"
	CategoryWhat     Category = "WHAT"
	CategoryWhen     Category = "WHEN"
)

// Item is one tile. Tapping a folder opens Target; tapping anything else
// appends Label to the message.
type Item struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Emoji    string   `json:"emoji"`
	Category Category `json:"category"`
	Folder   bool     `json:"folder,omitempty"`
	Target   Category `json:"target,omitempty"`
}

// Vocabulary maps each category to its tiles in display order.
type Vocabulary map[Category][]Item

// Find returns the item with id.
func (v Vocabulary) Find(id string) (Item, bool) {
	for _, items := range v {
		for _, it := range items {
			if it.ID == id {
				return it, true
			}
		}
	}
	return Item{}, false
}

// All returns every tile that is not a folder.
func (v Vocabulary) All() []Item {
	var out []Item
	for _, items := range v {
		for _, it := range items {
			if !it.Folder {
				out = append(out, it)
			}
		}
	}
	return out
}

func folder(id, label, emoji string, target Category) Item {
	return Item{ID: id, Label: label, Emoji: emoji, Category: CategoryRoot, Folder: true, Target: target}
}

func words(c Category, tiles ...[3]string) []Item {
	out := make([]Item, len(tiles))
	for i, t := range tiles {
		out[i] = Item{ID: t[0], Label: t[1], Emoji: t[2], Category: c}
	}
	return out
}

// DefaultVocabulary is the built-in core board.
func DefaultVocabulary() Vocabulary {
	root := append(words(CategoryRoot,
		[3]string{"i", "I", "🙋"},
		[3]string{"you", "you", "👉"},
		[3]string{"want", "want", "🤲"},
		[3]string{"need", "need", "❗"},
		[3]string{"like", "like", "👍"},
		[3]string{"dont", "don't", "🚫"},
		[3]string{"yes", "yes", "✅"},
		[3]string{"no", "no", "❌"},
		[3]string{"help", "help", "🆘"},
		[3]string{"more", "more", "➕"},
		[3]string{"stop", "stop", "✋"},
		[3]string{"please", "please", "🙏"},
		[3]string{"thank-you", "thank you", "💐"},
	),
		folder("f-do", "do", "🏃", CategoryDo),
		folder("f-eat", "eat", "🍽️", CategoryEat),
		folder("f-go", "go", "🚶", CategoryGo),
		folder("f-tell", "tell", "💬", CategoryTell),
		folder("f-might", "might", "🤔", CategoryMight),
		folder("f-things", "things", "📦", CategoryThings),
		folder("f-tool", "tool", "🔧", CategoryTool),
		folder("f-material", "material", "🧱", CategoryMaterial),
		folder("f-is-be", "is / be", "🟰", CategoryIsBe),
		folder("f-look", "look", "👀", CategoryLook),
		folder("f-wear", "wear", "👕", CategoryWear),
		folder("f-body", "body", "🧍", CategoryBody),
		folder("f-touch", "touch", "🖐️", CategoryTouch),
		folder("f-people", "people", "👪", CategoryPeople),
		folder("f-what", "what", "❔", CategoryWhat),
		folder("f-when", "when", "🕒", CategoryWhen),
	)

	return Vocabulary{
		CategoryRoot: root,
		CategoryDo: words(CategoryDo,
			[3]string{"do-play", "play", "🎮"},
			[3]string{"do-read", "read", "📖"},
			[3]string{"do-sleep", "sleep", "😴"},
			[3]string{"do-wash", "wash", "🧼"},
			[3]string{"do-write", "write", "✏️"},
			[3]string{"do-listen", "listen", "🎧"},
			[3]string{"do-work", "work", "💼"},
			[3]string{"do-rest", "rest", "🛋️"},
		),
		CategoryEat: words(CategoryEat,
			[3]string{"eat-water", "water", "💧"},
			[3]string{"eat-apple", "apple", "🍎"},
			[3]string{"eat-bread", "bread", "🍞"},
			[3]string{"eat-coffee", "coffee", "☕"},
			[3]string{"eat-juice", "juice", "🧃"},
			[3]string{"eat-pizza", "pizza", "🍕"},
			[3]string{"eat-soup", "soup", "🍲"},
			[3]string{"eat-hungry", "hungry", "😋"},
			[3]string{"eat-thirsty", "thirsty", "🥤"},
		),
		CategoryGo: words(CategoryGo,
			[3]string{"go-home", "home", "🏠"},
			[3]string{"go-outside", "outside", "🌳"},
			[3]string{"go-bathroom", "bathroom", "🚻"},
			[3]string{"go-bed", "bed", "🛏️"},
			[3]string{"go-shop", "shop", "🛒"},
			[3]string{"go-doctor", "doctor", "🏥"},
			[3]string{"go-school", "school", "🏫"},
			[3]string{"go-car", "car", "🚗"},
		),
		CategoryTell: words(CategoryTell,
			[3]string{"tell-hello", "hello", "👋"},
			[3]string{"tell-goodbye", "goodbye", "👋"},
			[3]string{"tell-sorry", "sorry", "😔"},
			[3]string{"tell-love", "I love you", "❤️"},
			[3]string{"tell-wait", "wait", "⏳"},
			[3]string{"tell-again", "again", "🔁"},
		),
		CategoryMight: words(CategoryMight,
			[3]string{"might-maybe", "maybe", "🤷"},
			[3]string{"might-can", "can", "💪"},
			[3]string{"might-could", "could", "🤏"},
			[3]string{"might-should", "should", "☝️"},
			[3]string{"might-will", "will", "🎯"},
		),
		CategoryThings: words(CategoryThings,
			[3]string{"things-phone", "phone", "📱"},
			[3]string{"things-tv", "TV", "📺"},
			[3]string{"things-book", "book", "📕"},
			[3]string{"things-bag", "bag", "🎒"},
			[3]string{"things-keys", "keys", "🔑"},
			[3]string{"things-glasses", "glasses", "👓"},
			[3]string{"things-medicine", "medicine", "💊"},
		),
		CategoryTool: words(CategoryTool,
			[3]string{"tool-scissors", "scissors", "✂️"},
			[3]string{"tool-pen", "pen", "🖊️"},
			[3]string{"tool-hammer", "hammer", "🔨"},
			[3]string{"tool-spoon", "spoon", "🥄"},
			[3]string{"tool-cup", "cup", "🥛"},
		),
		CategoryMaterial: words(CategoryMaterial,
			[3]string{"material-paper", "paper", "📄"},
			[3]string{"material-wood", "wood", "🪵"},
			[3]string{"material-glass", "glass", "🪟"},
			[3]string{"material-metal", "metal", "🔩"},
			[3]string{"material-cloth", "cloth", "🧵"},
		),
		CategoryIsBe: words(CategoryIsBe,
			[3]string{"is-am", "am", "🙋"},
			[3]string{"is-is", "is", "🟰"},
			[3]string{"is-are", "are", "👥"},
			[3]string{"is-happy", "happy", "😊"},
			[3]string{"is-sad", "sad", "😢"},
			[3]string{"is-tired", "tired", "🥱"},
			[3]string{"is-hurt", "hurt", "🤕"},
			[3]string{"is-cold", "cold", "🥶"},
			[3]string{"is-hot", "hot", "🥵"},
		),
		CategoryLook: words(CategoryLook,
			[3]string{"look-see", "see", "👁️"},
			[3]string{"look-watch", "watch", "📺"},
			[3]string{"look-find", "find", "🔍"},
			[3]string{"look-show", "show me", "👆"},
		),
		CategoryWear: words(CategoryWear,
			[3]string{"wear-shirt", "shirt", "👕"},
			[3]string{"wear-pants", "pants", "👖"},
			[3]string{"wear-shoes", "shoes", "👟"},
			[3]string{"wear-coat", "coat", "🧥"},
			[3]string{"wear-hat", "hat", "🧢"},
			[3]string{"wear-socks", "socks", "🧦"},
		),
		CategoryBody: words(CategoryBody,
			[3]string{"body-head", "head", "🗣️"},
			[3]string{"body-stomach", "stomach", "🫃"},
			[3]string{"body-hand", "hand", "✋"},
			[3]string{"body-leg", "leg", "🦵"},
			[3]string{"body-eyes", "eyes", "👀"},
			[3]string{"body-teeth", "teeth", "🦷"},
			[3]string{"body-pain", "pain", "⚡"},
		),
		CategoryTouch: words(CategoryTouch,
			[3]string{"touch-hold", "hold", "🤝"},
			[3]string{"touch-hug", "hug", "🤗"},
			[3]string{"touch-push", "push", "👐"},
			[3]string{"touch-give", "give", "🎁"},
			[3]string{"touch-open", "open", "📂"},
			[3]string{"touch-close", "close", "📁"},
		),
		CategoryPeople: words(CategoryPeople,
			[3]string{"people-mom", "mom", "👩"},
			[3]string{"people-dad", "dad", "👨"},
			[3]string{"people-friend", "friend", "🧑‍🤝‍🧑"},
			[3]string{"people-teacher", "teacher", "🧑‍🏫"},
			[3]string{"people-nurse", "nurse", "🧑‍⚕️"},
			[3]string{"people-me", "me", "🙋"},
		),
		CategoryWhat: words(CategoryWhat,
			[3]string{"what-what", "what", "❓"},
			[3]string{"what-where", "where", "📍"},
			[3]string{"what-who", "who", "👤"},
			[3]string{"what-why", "why", "🤔"},
			[3]string{"what-how", "how", "🛠️"},
		),
		CategoryWhen: words(CategoryWhen,
			[3]string{"when-now", "now", "⏱️"},
			[3]string{"when-later", "later", "⌛"},
			[3]string{"when-today", "today", "📅"},
			[3]string{"when-tomorrow", "tomorrow", "🌅"},
			[3]string{"when-morning", "morning", "🌄"},
			[3]string{"when-night", "night", "🌙"},
		),
	}
}
